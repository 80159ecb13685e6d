package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	dhcpdomain "github.com/smallbiznis/abonix/internal/dhcp/domain"
)

// DhcpLever receives lease events from the DHCP server. Handled problems come
// back as {"text": ...}, integrity violations as {"status": <error text>},
// success as {"status": "ok"}. Always a 200; the DHCP hook script only reads
// the body.
func (s *Server) DhcpLever(c *gin.Context) {
	switchPort, _ := strconv.Atoi(c.Query("switch_port"))
	event := dhcpdomain.Event{
		Cmd:        strings.TrimSpace(c.Query("cmd")),
		ClientIP:   strings.TrimSpace(c.Query("client_ip")),
		ClientMAC:  strings.TrimSpace(c.Query("client_mac")),
		SwitchMAC:  strings.TrimSpace(c.Query("switch_mac")),
		SwitchPort: switchPort,
	}

	text, err := s.dhcpSvc.HandleEvent(c.Request.Context(), event)
	if err != nil {
		var conflict *dhcpdomain.LeaseConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusOK, gin.H{"status": conflict.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": strings.ReplaceAll(err.Error(), "\n", " ")})
		return
	}
	if text != "" {
		c.JSON(http.StatusOK, gin.H{"text": text})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
