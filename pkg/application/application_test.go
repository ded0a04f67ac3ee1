package application

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct{ name string }

type fakeController struct{ key string }

func (c *fakeController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(http.ResponseWriter, *http.Request) {})
}

func (c *fakeController) Key() string { return c.key }

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{})
	svc := &fakeService{name: "engine"}
	app.RegisterServices(svc)

	got := app.Service(fakeService{}).(*fakeService)
	assert.Same(t, svc, got)

	require.Panics(t, func() { app.Service(struct{ X int }{}) })
}

func TestApplication_ControllersOrderedAndDeduplicated(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterControllers(&fakeController{key: "/b"}, &fakeController{key: "/a"}, &fakeController{key: "/b"})

	keys := []string{}
	for _, c := range app.Controllers() {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{"/a", "/b"}, keys)
}
