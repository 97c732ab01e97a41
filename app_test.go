package restkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/restkit-dev/restkit/pkg/binder"
	"github.com/restkit-dev/restkit/pkg/envelope"
)

func newTestApp(t *testing.T, mutate func(*Config)) *App {
	t.Helper()
	cfg := Config{
		AppName: "test_server",
		LogDir:  t.TempDir(),
	}
	cfg.Upload.Dir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { app.Logger().Close() })
	return app
}

type testEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Code   int             `json:"code"`
}

func doRequest(t *testing.T, app *App, method, target string, body *strings.Reader) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("response %q is not an envelope: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestHelloWorld(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("hello_world", func(ctx *Ctx) (any, error) {
		return map[string]string{"message": "Hello, world!"}, nil
	})

	rec, env := doRequest(t, app, http.MethodGet, "/hello_world", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if env.Status != "OK" || env.Code != 200 {
		t.Errorf("envelope = %+v, want OK/200", env)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["message"] != "Hello, world!" {
		t.Errorf("message = %q", data["message"])
	}
}

func TestHandlerErrorBecomesErrorEnvelope(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("error_endpoint", func(ctx *Ctx) (any, error) {
		return nil, errors.New("This is an error message.")
	})

	rec, env := doRequest(t, app, http.MethodGet, "/error_endpoint", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if env.Status != "INTERNAL_SERVER_ERROR" {
		t.Errorf("status label = %q, want INTERNAL_SERVER_ERROR", env.Status)
	}
	var data map[string]string
	json.Unmarshal(env.Data, &data)
	if data["error"] != "This is an error message." {
		t.Errorf("error = %q", data["error"])
	}
}

func TestResultCarriesStatusCode(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("specific_http_code", func(ctx *Ctx) (any, error) {
		return envelope.Result{
			Data: map[string]string{"message": "created"},
			Code: http.StatusCreated,
		}, nil
	})

	rec, env := doRequest(t, app, http.MethodGet, "/specific_http_code", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if env.Status != "CREATED" || env.Code != 201 {
		t.Errorf("envelope = %+v, want CREATED/201", env)
	}
}

func TestUppercasePathRedirects(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("hello_world", func(ctx *Ctx) (any, error) {
		return map[string]string{"message": "hi"}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/Hello_World?Name=Bob&x=1%202", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusPermanentRedirect {
		t.Fatalf("status = %d, want 308", rec.Code)
	}
	// The query string must survive the redirect byte for byte,
	// including its original case and encoding.
	if got := rec.Header().Get("Location"); got != "/hello_world?Name=Bob&x=1%202" {
		t.Errorf("Location = %q", got)
	}
}

func TestLowercasePathNotRedirected(t *testing.T) {
	app := newTestApp(t, nil)
	rec, _ := doRequest(t, app, http.MethodGet, "/index", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	app := newTestApp(t, nil)
	rec, env := doRequest(t, app, http.MethodGet, "/no_such_endpoint", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env.Status != "NOT_FOUND" {
		t.Errorf("status label = %q, want NOT_FOUND", env.Status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("post_only", func(ctx *Ctx) (any, error) {
		return "ok", nil
	}, WithMethods(http.MethodPost))

	rec, _ := doRequest(t, app, http.MethodGet, "/post_only", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRootServesIndex(t *testing.T) {
	app := newTestApp(t, nil)
	rec, env := doRequest(t, app, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var data struct {
		Message string `json:"message"`
		Routes  []struct {
			Endpoint string `json:"endpoint"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Message != "Welcome to the test_server" {
		t.Errorf("message = %q", data.Message)
	}
	if len(data.Routes) == 0 || data.Routes[0].Endpoint != "index" {
		t.Errorf("routes = %+v, want index first", data.Routes)
	}
}

func TestIndexListsEndpointsInRegistrationOrder(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("alpha", func(ctx *Ctx) (any, error) { return nil, nil })
	app.Register("beta", func(ctx *Ctx) (any, error) { return nil, nil })

	_, env := doRequest(t, app, http.MethodGet, "/index", nil)
	var data struct {
		Routes []struct {
			Endpoint string `json:"endpoint"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	var names []string
	for _, r := range data.Routes {
		names = append(names, r.Endpoint)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "alpha,beta") {
		t.Errorf("routes out of order: %v", names)
	}
}

func TestDynamicRegistrationWhileServing(t *testing.T) {
	app := newTestApp(t, nil)

	rec, _ := doRequest(t, app, http.MethodGet, "/late", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pre-registration status = %d, want 404", rec.Code)
	}

	if err := app.Register("late", func(ctx *Ctx) (any, error) {
		return "here now", nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	rec, _ = doRequest(t, app, http.MethodGet, "/late", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("post-registration status = %d, want 200", rec.Code)
	}
}

func TestQueryArgumentsBindAsStrings(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("echo", func(ctx *Ctx, args binder.Args) (any, error) {
		return args, nil
	})

	_, env := doRequest(t, app, http.MethodGet, "/echo?user_id=42", nil)
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got, ok := data["user_id"].(string); !ok || got != "42" {
		t.Errorf(`user_id = %#v, want string "42"`, data["user_id"])
	}
}

func TestJSONBodyOverridesQuery(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("echo", func(ctx *Ctx, args binder.Args) (any, error) {
		return args, nil
	})

	_, env := doRequest(t, app, http.MethodPost, "/echo?var1=query", strings.NewReader(`{"var1": "body", "var2": 7}`))
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["var1"] != "body" {
		t.Errorf("var1 = %#v, want body value to win", data["var1"])
	}
	if data["var2"] != float64(7) {
		t.Errorf("var2 = %#v, want 7", data["var2"])
	}
}

func TestTypedParamsHandler(t *testing.T) {
	type postParams struct {
		Var1 string `param:"var1"`
		Var2 string `param:"var2"`
		Var3 string `param:"var3,optional"`
	}

	app := newTestApp(t, nil)
	app.Register("post_example", func(ctx *Ctx, p postParams) (any, error) {
		if p.Var3 == "" {
			p.Var3 = "default"
		}
		return map[string]string{"var1": p.Var1, "var2": p.Var2, "var3": p.Var3}, nil
	}, WithMethods(http.MethodPost))

	rec, env := doRequest(t, app, http.MethodPost, "/post_example", strings.NewReader(`{"var1": "a", "var2": "b"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var data map[string]string
	json.Unmarshal(env.Data, &data)
	if data["var3"] != "default" {
		t.Errorf("var3 = %q, want default applied", data["var3"])
	}

	// Missing required parameter surfaces as a server error.
	rec, env = doRequest(t, app, http.MethodPost, "/post_example", strings.NewReader(`{"var1": "a"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("missing param status = %d, want 500", rec.Code)
	}
	var errData map[string]string
	json.Unmarshal(env.Data, &errData)
	if !strings.Contains(errData["error"], "var2") {
		t.Errorf("error = %q, want it to name var2", errData["error"])
	}
}

func TestNoArgHandlerRejectsArguments(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("strict", func(ctx *Ctx) (any, error) {
		return "ok", nil
	})

	rec, _ := doRequest(t, app, http.MethodGet, "/strict?surprise=1", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for unexpected argument", rec.Code)
	}
}

func TestPanicInHandlerBecomes500(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("boom", func(ctx *Ctx) (any, error) {
		panic("unexpected state")
	})

	rec, env := doRequest(t, app, http.MethodGet, "/boom", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var data map[string]string
	json.Unmarshal(env.Data, &data)
	if !strings.Contains(data["error"], "unexpected state") {
		t.Errorf("error = %q", data["error"])
	}
}

func TestMountUnit(t *testing.T) {
	app := newTestApp(t, nil)

	type profileParams struct {
		UserID string `param:"user_id"`
	}
	svc := NewService().
		Register("get_profile", func(ctx *Ctx, p profileParams) (any, error) {
			return map[string]string{"user_id": p.UserID}, nil
		})

	if err := app.MountUnit("user", svc); err != nil {
		t.Fatalf("MountUnit() error = %v", err)
	}

	rec, env := doRequest(t, app, http.MethodGet, "/user/get_profile?user_id=42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var data map[string]string
	json.Unmarshal(env.Data, &data)
	if data["user_id"] != "42" {
		t.Errorf("user_id = %q, want query value bound as string", data["user_id"])
	}
}

func TestConcurrentRegisterAndMountUnit(t *testing.T) {
	for i := 0; i < 20; i++ {
		app := newTestApp(t, nil)
		svc := NewService().Register("status", func(ctx *Ctx) (any, error) { return "ok", nil })

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs[0] = app.Register("worker/status", func(ctx *Ctx) (any, error) { return "direct", nil })
		}()
		go func() {
			defer wg.Done()
			errs[1] = app.MountUnit("worker", svc)
		}()
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrRegistrationConflict) {
				t.Fatalf("unexpected error: %v", err)
			}
			failed++
		}
		if failed != 1 {
			t.Fatalf("conflicts = %d, want exactly one of Register and MountUnit to fail", failed)
		}
	}
}

func TestMountUnitPropertyRoute(t *testing.T) {
	app := newTestApp(t, nil)
	svc := NewService().
		RegisterProperty("version", func(ctx *Ctx) (any, error) {
			return map[string]string{"version": "1.2.3"}, nil
		})

	if err := app.MountUnit("worker", svc); err != nil {
		t.Fatalf("MountUnit() error = %v", err)
	}

	rec, env := doRequest(t, app, http.MethodGet, "/worker/property/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var data map[string]string
	json.Unmarshal(env.Data, &data)
	if data["version"] != "1.2.3" {
		t.Errorf("version = %q, want getter value", data["version"])
	}

	rec, _ = doRequest(t, app, http.MethodGet, "/worker/version", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without property segment = %d, want %d", rec.Code, http.StatusNotFound)
	}
	rec, _ = doRequest(t, app, http.MethodPost, "/worker/property/version", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestMountUnitConflict(t *testing.T) {
	app := newTestApp(t, nil)
	svc := NewService().Register("status", func(ctx *Ctx) (any, error) { return "ok", nil })

	if err := app.MountUnit("worker", svc); err != nil {
		t.Fatalf("first MountUnit() error = %v", err)
	}
	err := app.MountUnit("worker", NewService())
	if !errors.Is(err, ErrRegistrationConflict) {
		t.Fatalf("second MountUnit() error = %v, want ErrRegistrationConflict", err)
	}
}

func TestUnitErrorPropagates(t *testing.T) {
	app := newTestApp(t, nil)
	svc := NewService().Register("error", func(ctx *Ctx) (any, error) {
		return nil, errors.New("Error from fizz.error")
	})
	if err := app.MountUnit("fizz", svc); err != nil {
		t.Fatalf("MountUnit() error = %v", err)
	}

	rec, env := doRequest(t, app, http.MethodGet, "/fizz/error", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var data map[string]string
	json.Unmarshal(env.Data, &data)
	if data["error"] != "Error from fizz.error" {
		t.Errorf("error = %q", data["error"])
	}
}

func TestRegisterProperty(t *testing.T) {
	app := newTestApp(t, nil)
	if err := app.RegisterProperty("version", func(ctx *Ctx) (any, error) {
		return "1.2.3", nil
	}); err != nil {
		t.Fatalf("RegisterProperty() error = %v", err)
	}

	rec, env := doRequest(t, app, http.MethodGet, "/property/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var data string
	json.Unmarshal(env.Data, &data)
	if data != "1.2.3" {
		t.Errorf("data = %q", data)
	}

	// Properties are GET-only.
	rec, _ = doRequest(t, app, http.MethodPost, "/property/version", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}

	// Arguments are ignored, not rejected.
	rec, _ = doRequest(t, app, http.MethodGet, "/property/version?x=1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status with args = %d, want 200", rec.Code)
	}
}

func TestGetRunMode(t *testing.T) {
	for _, tt := range []struct {
		demo bool
		want string
	}{
		{demo: true, want: "demo"},
		{demo: false, want: "production"},
	} {
		app := newTestApp(t, func(c *Config) { c.DemoMode = tt.demo })
		_, env := doRequest(t, app, http.MethodGet, "/get_run_mode", nil)
		var data map[string]string
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data["run_mode"] != tt.want {
			t.Errorf("demo=%v: run_mode = %q, want %q", tt.demo, data["run_mode"], tt.want)
		}
	}
}

func TestCaseInsensitiveDispatchAfterRedirect(t *testing.T) {
	app := newTestApp(t, nil)
	app.Register("Hello_World", func(ctx *Ctx) (any, error) {
		return "hi", nil
	})

	// Registered with mixed case, dispatched lowercase.
	rec, _ := doRequest(t, app, http.MethodGet, "/hello_world", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
