package agent

import (
	"context"
	"sort"
	"strings"

	"opsvision/internal/domain/ports/adapter"
)

// ServerStatus is one row of the static fleet table.
type ServerStatus struct {
	State string // ONLINE, CRITICAL, OFFLINE
	Load  int    // percent
}

// DefaultFleet is the status table the built-in tools report on.
func DefaultFleet() map[string]ServerStatus {
	return map[string]ServerStatus{
		"web-01":   {State: "ONLINE", Load: 15},
		"db-01":    {State: "CRITICAL", Load: 99},
		"cache-01": {State: "OFFLINE"},
	}
}

const highLoad = 90

// RegisterBuiltins adds check_server_status and system_health over fleet.
func RegisterBuiltins(r *Registry, fleet map[string]ServerStatus) error {
	if err := r.Register(adapter.ToolSpec{
		Name:        "check_server_status",
		Description: "Checks the health status of a specific server hostname.",
		Params: []adapter.ToolParam{
			{Name: "hostname", Description: "server hostname, e.g. web-01", Required: true},
		},
	}, ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
		host, _ := args["hostname"].(string)
		host = strings.ToLower(strings.TrimSpace(host))
		st, ok := fleet[host]
		if !ok {
			return map[string]any{"hostname": host, "status": "Server not found."}, nil
		}
		return map[string]any{"hostname": host, "status": st.State, "load": st.Load}, nil
	})); err != nil {
		return err
	}

	return r.Register(adapter.ToolSpec{
		Name:        "system_health",
		Description: "Summarizes the health of every known server.",
	}, ExecutorFunc(func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"servers": healthReport(fleet)}, nil
	}))
}

func healthReport(fleet map[string]ServerStatus) []string {
	hosts := make([]string, 0, len(fleet))
	for h := range fleet {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		st := fleet[h]
		switch {
		case st.State == "OFFLINE":
			out = append(out, h+": offline")
		case st.Load > highLoad:
			out = append(out, h+": high load")
		default:
			out = append(out, h+": healthy")
		}
	}
	return out
}
