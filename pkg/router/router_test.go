package router

import (
	"testing"

	"courier/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func request(method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	return ctx
}

func TestRouterParamsAndMethods(t *testing.T) {
	r := New()
	var got string
	r.GET("/v1/messages/{userId}", func(ctx *fasthttp.RequestCtx) { got = PathParam(ctx, "userId") })
	r.GET("/admin/debug/pprof/*", func(ctx *fasthttp.RequestCtx) { got = PathParam(ctx, "*") })
	r.GET("/", func(ctx *fasthttp.RequestCtx) { got = "root" })

	r.Handler(request("GET", "/v1/messages/bob"))
	assert.Equal(t, "bob", got)

	r.Handler(request("GET", "/admin/debug/pprof/heap"))
	assert.Equal(t, "heap", got)

	r.Handler(request("GET", "/"))
	assert.Equal(t, "root", got)

	ctx := request("POST", "/v1/messages/bob")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())

	ctx = request("GET", "/v1/messages")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"not found"}`, string(ctx.Response.Body()))
}

func TestWriteError(t *testing.T) {
	ctx := request("GET", "/")
	WriteError(ctx, apperr.Conflict("op", "username taken"))
	assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"username taken"}`, string(ctx.Response.Body()))
}

func TestBindJSON(t *testing.T) {
	ctx := request("POST", "/")
	var v struct {
		Name string `json:"name"`
	}
	err := BindJSON(ctx, &v)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	ctx.Request.SetBodyString(`{"name":`)
	err = BindJSON(ctx, &v)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	ctx.Request.SetBodyString(`{"name":"x"}`)
	require.NoError(t, BindJSON(ctx, &v))
	assert.Equal(t, "x", v.Name)
}
