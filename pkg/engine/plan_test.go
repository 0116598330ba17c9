package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLaunchPlan_Validate_RejectsPortCollision(t *testing.T) {
	p := LaunchPlan{Services: []ServiceSpec{
		{Name: "api", Port: 5005, Command: []string{"api"}},
		{Name: "web", Port: 5005, Command: []string{"web"}},
	}}
	err := p.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "port 5005")
}

func TestLaunchPlan_Validate_RejectsNameCollision(t *testing.T) {
	p := LaunchPlan{Services: []ServiceSpec{
		{Name: "api", Command: []string{"a"}},
		{Name: "api", Command: []string{"b"}},
	}}
	require.Error(t, p.Validate())
}

func TestLaunchPlan_Validate_ContainerNeedsTarget(t *testing.T) {
	p := LaunchPlan{Services: []ServiceSpec{
		{Name: "db", Port: 5432, Runtime: RuntimeContainer},
	}}
	require.Error(t, p.Validate())

	p.Services[0].ComposeService = "postgres"
	require.NoError(t, p.Validate())
}

func TestLaunchPlan_SelectKeepsRequestedOrder(t *testing.T) {
	p := LaunchPlan{Services: []ServiceSpec{
		{Name: "a", Port: 1, Command: []string{"a"}},
		{Name: "b", Port: 2, Command: []string{"b"}, Infra: true},
		{Name: "c", Port: 3, Command: []string{"c"}},
	}}

	sel, err := p.Select("c", "a")
	require.NoError(t, err)
	require.Equal(t, "c", sel.Services[0].Name)
	require.Equal(t, "a", sel.Services[1].Name)
	require.Equal(t, []int{3, 1}, sel.Ports())

	_, err = p.Select("missing")
	require.Error(t, err)

	require.Len(t, p.Infra(), 1)
}

func TestServiceSpec_URLs(t *testing.T) {
	svc := ServiceSpec{BaseURL: "http://localhost:5005/", Health: &HealthCheck{Type: CheckHTTPStrict, Path: "health"}, OpenPath: "/swagger"}
	require.Equal(t, "http://localhost:5005/health", svc.HealthURL())
	require.Equal(t, "http://localhost:5005/swagger", svc.OpenURL())

	svc.Health.URL = "http://127.0.0.1:9/x"
	require.Equal(t, "http://127.0.0.1:9/x", svc.HealthURL())
}
