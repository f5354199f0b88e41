package xgrpc

import (
	"fmt"
	"strings"
)

// ParseFullMethod parses a full method name into its service, and method
// components.
//
// For example, the full method name `/p4.v1.P4Runtime/Write` will be parsed
// into `p4.v1.P4Runtime` and `Write`.
func ParseFullMethod(fullMethod string) (string, string, error) {
	if !strings.HasPrefix(fullMethod, "/") {
		return "", "", fmt.Errorf("method name must be in format `/package.service/method`")
	}

	name := fullMethod[1:]
	pos := strings.LastIndex(name, "/")
	if pos < 0 {
		return "", "", fmt.Errorf("method name must be in format `/package.service/method`")
	}

	service, method := name[:pos], name[pos+1:]
	return service, method, nil
}

// methodFields returns structured log fields for the full method name.
func methodFields(fullMethod string) []any {
	service, method, err := ParseFullMethod(fullMethod)
	if err != nil {
		return []any{"method", fullMethod}
	}
	return []any{"service", service, "method", method}
}
