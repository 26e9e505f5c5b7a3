package main

import (
	"github.com/UnendingLoop/Colorizer/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"
)

// newRouter mounts every endpoint under basePath.
// Routes go through the embedded gin engine: ginext.RouterGroup does not implement gin.IRouter.
func newRouter(ginMode, basePath string, h *transport.Handler, maxFileSize int64) *ginext.Engine {
	engine := ginext.New(ginMode)
	engine.Use(cors.Default())
	transport.RegisterRoutes(engine.Engine.Group(basePath), h, maxFileSize)
	return engine
}
