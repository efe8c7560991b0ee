package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// parseToolArguments extracts the arguments map from a tool request.
// A request without arguments yields an empty map.
func parseToolArguments(request mcp.CallToolRequest) (map[string]interface{}, *mcp.CallToolResult) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	argsMap, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, mcp.NewToolResultError("invalid arguments format")
	}
	return argsMap, nil
}

// parseStringArg extracts a string argument. Missing or empty values are an
// error only when required.
func parseStringArg(argsMap map[string]interface{}, key string, required bool) (string, error) {
	val, ok := argsMap[key]
	if !ok {
		if required {
			return "", fmt.Errorf("%s parameter is required", key)
		}
		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if required && str == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return str, nil
}

// parseIntArg extracts an integer argument. Clients send numbers as
// float64; some send them as strings of JSON, which json.Number covers.
func parseIntArg(argsMap map[string]interface{}, key string, defaultVal int) int {
	switch v := argsMap[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultVal
}

// parseClampedInt extracts an integer argument and clamps it to [lo, hi].
func parseClampedInt(argsMap map[string]interface{}, key string, defaultVal, lo, hi int) int {
	val := parseIntArg(argsMap, key, defaultVal)
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func parseBoolArg(argsMap map[string]interface{}, key string, defaultVal bool) bool {
	if b, ok := argsMap[key].(bool); ok {
		return b
	}
	return defaultVal
}

// marshalToolResponse renders response as a JSON text result.
func marshalToolResponse(response interface{}) (*mcp.CallToolResult, error) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
