package cmd

import (
	"context"
	"encoding/json"
	"net/http"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/registry"
)

// PingEntryPoint builds a module that answers GET /ping. Registering
// metadata with this entry point gives a live instance, which is handy for
// smoke testing a deployment.
const PingEntryPoint = "modhub.ping"

func registerBuiltins(l *registry.Loader) {
	l.Register(PingEntryPoint, newPingModule)
}

type pingModule struct {
	message string
}

func newPingModule(config map[string]any) (modular.Module, error) {
	m := &pingModule{message: "pong"}
	if msg, ok := config["message"].(string); ok && msg != "" {
		m.message = msg
	}
	return m, nil
}

// Metadata describes the implementation; the registered metadata comes from
// the registration request.
func (m *pingModule) Metadata() modular.ModuleMetadata {
	return modular.ModuleMetadata{Name: "Ping", EntryPoint: PingEntryPoint}
}

func (m *pingModule) RegisterRoutes(r modular.RouteRegistrar) {
	r.HandleFunc(http.MethodGet, "/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"message": m.message})
	})
}

func (m *pingModule) HealthCheck(context.Context) error { return nil }
