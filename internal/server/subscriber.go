package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriberdomain "github.com/smallbiznis/abonix/internal/subscriber/domain"
	"github.com/smallbiznis/abonix/pkg/db/pagination"
)

func (s *Server) ListSubscribers(c *gin.Context) {
	groupID, err := snowflake.ParseString(strings.TrimSpace(c.Query("group_id")))
	if err != nil {
		AbortWithError(c, newValidationError("group_id", "invalid_group", "invalid group id"))
		return
	}

	req := subscriberdomain.ListSubscriberRequest{
		Pagination: pagination.Pagination{
			PageToken: c.Query("page_token"),
			PageSize:  queryInt(c, "page_size"),
		},
		GroupID: groupID,
	}
	if raw := strings.TrimSpace(c.Query("street_id")); raw != "" {
		streetID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("street_id", "invalid_street", "invalid street id"))
			return
		}
		req.StreetID = &streetID
	}

	resp, err := s.subscriberSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscribers, "page_info": resp.PageInfo})
}

type createSubscriberRequest struct {
	Username  string `json:"username" binding:"required"`
	FIO       string `json:"fio"`
	Telephone string `json:"telephone"`
	GroupID   string `json:"group_id" binding:"required"`
	StreetID  string `json:"street_id"`
	House     string `json:"house"`
}

func (s *Server) CreateSubscriber(c *gin.Context) {
	var body createSubscriberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	groupID, err := snowflake.ParseString(body.GroupID)
	if err != nil {
		AbortWithError(c, newValidationError("group_id", "invalid_group", "invalid group id"))
		return
	}

	req := subscriberdomain.CreateSubscriberRequest{
		Username:  body.Username,
		FIO:       body.FIO,
		Telephone: body.Telephone,
		GroupID:   groupID,
		House:     body.House,
	}
	if body.StreetID != "" {
		streetID, err := snowflake.ParseString(body.StreetID)
		if err != nil {
			AbortWithError(c, newValidationError("street_id", "invalid_street", "invalid street id"))
			return
		}
		req.StreetID = &streetID
	}

	sub, err := s.subscriberSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

func (s *Server) SearchSubscribers(c *gin.Context) {
	term := strings.TrimSpace(c.Query("s"))
	if term == "" {
		c.JSON(http.StatusOK, gin.H{"data": []subscriberdomain.Subscriber{}})
		return
	}

	subs, err := s.subscriberSvc.Search(c.Request.Context(), term)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": subs})
}

func (s *Server) GetSubscriber(c *gin.Context) {
	sub, err := s.subscriberSvc.GetByUsername(c.Request.Context(), c.Param("uname"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

type attachDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

func (s *Server) AttachDevice(c *gin.Context) {
	var body attachDeviceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	deviceID, err := snowflake.ParseString(body.DeviceID)
	if err != nil {
		AbortWithError(c, newValidationError("device_id", "invalid_id", "invalid device id"))
		return
	}

	if err := s.subscriberSvc.AttachDevice(c.Request.Context(), c.Param("uname"), deviceID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ClearDevice(c *gin.Context) {
	if err := s.subscriberSvc.ClearDevice(c.Request.Context(), c.Param("uname")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type setDevPortRequest struct {
	PortID      string `json:"port_id"`
	IsDynamicIP bool   `json:"is_dynamic_ip"`
}

func (s *Server) SetDevPort(c *gin.Context) {
	var body setDevPortRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	req := subscriberdomain.SetDevPortRequest{
		Username:    c.Param("uname"),
		IsDynamicIP: body.IsDynamicIP,
	}
	if body.PortID != "" {
		portID, err := snowflake.ParseString(body.PortID)
		if err != nil {
			AbortWithError(c, newValidationError("port_id", "invalid_id", "invalid port id"))
			return
		}
		req.PortID = &portID
	}

	if err := s.subscriberSvc.SetDevPort(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type setAutoconnectRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) SetAutoconnect(c *gin.Context) {
	var body setAutoconnectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	if err := s.subscriberSvc.SetAutoconnect(c.Request.Context(), c.Param("uname"), body.Enabled); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type setMarkersRequest struct {
	Markers int64 `json:"markers"`
}

func (s *Server) SetMarkers(c *gin.Context) {
	var body setMarkersRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	if err := s.subscriberSvc.SetMarkers(c.Request.Context(), c.Param("uname"), body.Markers); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type attachNASRequest struct {
	NASID string `json:"nas_id" binding:"required"`
}

func (s *Server) AttachNASToGroup(c *gin.Context) {
	gid, err := snowflake.ParseString(c.Param("gid"))
	if err != nil {
		AbortWithError(c, newValidationError("gid", "invalid_group", "invalid group id"))
		return
	}
	var body attachNASRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	nasID, err := snowflake.ParseString(body.NASID)
	if err != nil {
		AbortWithError(c, newValidationError("nas_id", "invalid_id", "invalid nas id"))
		return
	}

	affected, err := s.subscriberSvc.AttachNASToGroup(c.Request.Context(), gid, nasID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "updated": affected})
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return value
}
