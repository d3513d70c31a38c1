package util

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// ParamUint 读取路径参数并转换为无符号整数，解析失败时返回 0
func ParamUint(c *gin.Context, name string) uint {
	id, err := cast.ToUintE(c.Param(name))
	if err != nil {
		return 0
	}
	return id
}

// QueryIntDefault 读取查询参数，缺失或非法时返回 def
func QueryIntDefault(c *gin.Context, name string, def int) int {
	v, ok := c.GetQuery(name)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
