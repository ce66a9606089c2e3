// Package autoload initializes the global logger from the LOG_*
// environment on import. Blank-import it from main.
package autoload

import (
	configx "github.com/tanpawarit/Difflin-Workflow-Engine/pkg/config"
	logx "github.com/tanpawarit/Difflin-Workflow-Engine/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
