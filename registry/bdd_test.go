package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

var (
	errNoRegistry              = errors.New("registry was not created")
	errRegistrationFailed      = errors.New("registration did not succeed")
	errRegistrationSucceeded   = errors.New("registration succeeded unexpectedly")
	errDeregistrationSucceeded = errors.New("deregistration succeeded unexpectedly")
	errUnexpectedState         = errors.New("unexpected registry state")
)

type registryBDDContext struct {
	registry     *ModuleRegistry
	lastResult   RegistrationResult
	lastDeregOK  bool
	lastDeregErr error
}

func (c *registryBDDContext) reset() {
	if c.registry != nil {
		_ = c.registry.Stop(context.Background())
	}
	*c = registryBDDContext{}
}

func (c *registryBDDContext) iHaveARegistryWithALimitOf(limit int) error {
	if c.registry != nil {
		_ = c.registry.Stop(context.Background())
	}
	cfg := testConfig()
	cfg.Registry.MaxRegisteredModules = limit
	r, err := New(*cfg)
	if err != nil {
		return err
	}
	c.registry = r
	return nil
}

func (c *registryBDDContext) register(m modular.ModuleMetadata) error {
	if c.registry == nil {
		return errNoRegistry
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := c.registry.RegisterModule(ctx, m, "bdd")
	if err != nil {
		return err
	}
	c.lastResult, err = c.registry.WaitForRequest(ctx, id)
	return err
}

func (c *registryBDDContext) iRegisterModuleWithEndpoint(id, endpoint string) error {
	m := meta(id)
	m.APIEndpoints = []string{endpoint}
	return c.register(m)
}

func (c *registryBDDContext) moduleIsRegisteredWithEndpoint(id, endpoint string) error {
	if err := c.iRegisterModuleWithEndpoint(id, endpoint); err != nil {
		return err
	}
	return c.theRegistrationShouldSucceed()
}

func (c *registryBDDContext) iRegisterModuleDependingOn(id, dep string) error {
	return c.register(meta(id, dep))
}

func (c *registryBDDContext) iRegisterNModules(n int) error {
	for i := range n {
		if err := c.register(meta(fmt.Sprintf("mod_%02d", i))); err != nil {
			return err
		}
		if !c.lastResult.Success {
			return fmt.Errorf("%w: %s", errRegistrationFailed, c.lastResult.Message)
		}
	}
	return nil
}

func (c *registryBDDContext) theRegistrationShouldSucceed() error {
	if !c.lastResult.Success {
		return fmt.Errorf("%w: %s", errRegistrationFailed, c.lastResult.Message)
	}
	return nil
}

func (c *registryBDDContext) theRegistrationShouldFailWithKind(kind string) error {
	if c.lastResult.Success {
		return errRegistrationSucceeded
	}
	if string(c.lastResult.Kind) != kind {
		return fmt.Errorf("%w: kind %q, want %q (%s)", errUnexpectedState, c.lastResult.Kind, kind, c.lastResult.Message)
	}
	return nil
}

func (c *registryBDDContext) moduleShouldBeRegistered(id string) error {
	if !c.registry.IsRegistered(id) {
		return fmt.Errorf("%w: %s is not registered", errUnexpectedState, id)
	}
	return nil
}

func (c *registryBDDContext) moduleShouldNotBeRegistered(id string) error {
	if c.registry.IsRegistered(id) {
		return fmt.Errorf("%w: %s is registered", errUnexpectedState, id)
	}
	return nil
}

func (c *registryBDDContext) routeShouldAnswer(route string, code int) error {
	method, path, _ := strings.Cut(route, " ")
	rec := httptest.NewRecorder()
	c.registry.Routes().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if rec.Code != code {
		return fmt.Errorf("%w: %s answered %d, want %d", errUnexpectedState, route, rec.Code, code)
	}
	return nil
}

func (c *registryBDDContext) theLoadOrderShouldBe(order string) error {
	got := strings.Join(c.lastResult.LoadOrder, ",")
	if got != order {
		return fmt.Errorf("%w: load order %s, want %s", errUnexpectedState, got, order)
	}
	return nil
}

func (c *registryBDDContext) iDeregisterModule(id string) error {
	c.lastDeregOK, c.lastDeregErr = c.registry.DeregisterModule(context.Background(), id, "bdd", false)
	return nil
}

func (c *registryBDDContext) iForceDeregisterModule(id string) error {
	ok, err := c.registry.DeregisterModule(context.Background(), id, "bdd", true)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: forced deregistration of %s reported false", errUnexpectedState, id)
	}
	return nil
}

func (c *registryBDDContext) theDeregistrationShouldFail() error {
	if c.lastDeregOK || c.lastDeregErr == nil {
		return errDeregistrationSucceeded
	}
	return nil
}

func (c *registryBDDContext) atMostNModulesShouldBeRegistered(n int) error {
	if got := c.registry.GetMemoryStats().RegisteredModules; got > n {
		return fmt.Errorf("%w: %d modules registered, limit %d", errUnexpectedState, got, n)
	}
	return nil
}

func InitializeRegistryScenario(ctx *godog.ScenarioContext) {
	c := &registryBDDContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	ctx.Step(`^I have a module registry with a limit of (\d+) modules$`, c.iHaveARegistryWithALimitOf)
	ctx.Step(`^I register module "([^"]*)" with endpoint "([^"]*)"$`, c.iRegisterModuleWithEndpoint)
	ctx.Step(`^module "([^"]*)" is registered with endpoint "([^"]*)"$`, c.moduleIsRegisteredWithEndpoint)
	ctx.Step(`^I register module "([^"]*)" depending on "([^"]*)"$`, c.iRegisterModuleDependingOn)
	ctx.Step(`^I register (\d+) modules$`, c.iRegisterNModules)

	ctx.Step(`^the registration should succeed$`, c.theRegistrationShouldSucceed)
	ctx.Step(`^the registration should fail with kind "([^"]*)"$`, c.theRegistrationShouldFailWithKind)
	ctx.Step(`^module "([^"]*)" should be registered$`, c.moduleShouldBeRegistered)
	ctx.Step(`^module "([^"]*)" should not be registered$`, c.moduleShouldNotBeRegistered)
	ctx.Step(`^route "([^"]*)" should answer (\d+)$`, c.routeShouldAnswer)
	ctx.Step(`^the load order should be "([^"]*)"$`, c.theLoadOrderShouldBe)

	ctx.Step(`^I deregister module "([^"]*)"$`, c.iDeregisterModule)
	ctx.Step(`^I force deregister module "([^"]*)"$`, c.iForceDeregisterModule)
	ctx.Step(`^the deregistration should fail$`, c.theDeregistrationShouldFail)
	ctx.Step(`^at most (\d+) modules should be registered$`, c.atMostNModulesShouldBeRegistered)
}

func TestRegistryFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeRegistryScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/registry.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
