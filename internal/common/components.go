package common

const (
	ComponentPipeline   = "pipeline"
	ComponentScheduler  = "scheduler"
	ComponentCheckpoint = "checkpoint"
	ComponentReorgGuard = "reorg-guard"
	ComponentRPC        = "rpc"
	ComponentAPI        = "api"
)

var AllComponents = map[string]struct{}{
	ComponentPipeline:   {},
	ComponentScheduler:  {},
	ComponentCheckpoint: {},
	ComponentReorgGuard: {},
	ComponentRPC:        {},
	ComponentAPI:        {},
}
