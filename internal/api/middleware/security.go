package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders 纯 JSON/ICS 接口的安全响应头：禁止嵌入、嗅探与缓存
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store") // 分配方案随运行变化

		c.Next()
	}
}
