package util

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// QueryInt reads an integer query parameter. Missing, malformed or negative
// values yield def.
func QueryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// QueryList reads a query parameter given repeatedly, comma-separated, or
// both, dropping blanks
func QueryList(c *gin.Context, key string) []string {
	values := c.QueryArray(key)
	result := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
