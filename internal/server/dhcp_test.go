package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	dhcpdomain "github.com/smallbiznis/abonix/internal/dhcp/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDhcpService struct {
	lastEvent dhcpdomain.Event
	text      string
	err       error
}

func (s *stubDhcpService) HandleEvent(_ context.Context, event dhcpdomain.Event) (string, error) {
	s.lastEvent = event
	return s.text, s.err
}

func newDhcpRouter(t *testing.T, stub *stubDhcpService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := &Server{dhcpSvc: stub}
	engine := gin.New()
	engine.GET("/api/dhcp_lever/", srv.DhcpLever)
	return engine
}

func dhcpGet(t *testing.T, engine *gin.Engine, query string) map[string]string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/dhcp_lever/?"+query, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDhcpLeverOK(t *testing.T) {
	stub := &stubDhcpService{}
	engine := newDhcpRouter(t, stub)

	body := dhcpGet(t, engine, "cmd=commit&client_ip=10.1.1.5&client_mac=11:22:33:44:55:66&switch_mac=aa:bb:cc:dd:ee:ff&switch_port=3")
	assert.Equal(t, map[string]string{"status": "ok"}, body)
	assert.Equal(t, dhcpdomain.Event{
		Cmd:        "commit",
		ClientIP:   "10.1.1.5",
		ClientMAC:  "11:22:33:44:55:66",
		SwitchMAC:  "aa:bb:cc:dd:ee:ff",
		SwitchPort: 3,
	}, stub.lastEvent)
}

func TestDhcpLeverHandledText(t *testing.T) {
	stub := &stubDhcpService{text: `"cmd" parameter is missing`}
	engine := newDhcpRouter(t, stub)

	body := dhcpGet(t, engine, "client_ip=10.1.1.5")
	assert.Equal(t, map[string]string{"text": `"cmd" parameter is missing`}, body)
}

func TestDhcpLeverLeaseConflict(t *testing.T) {
	stub := &stubDhcpService{err: &dhcpdomain.LeaseConflictError{IP: "10.1.1.5", Username: "squatter"}}
	engine := newDhcpRouter(t, stub)

	body := dhcpGet(t, engine, "cmd=commit&client_ip=10.1.1.5")
	assert.Equal(t, "ip 10.1.1.5 already leased to squatter", body["status"])
}
