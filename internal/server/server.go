package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/abonix/internal/config"
	"github.com/smallbiznis/abonix/internal/dhcp"
	dhcpdomain "github.com/smallbiznis/abonix/internal/dhcp/domain"
	"github.com/smallbiznis/abonix/internal/gateway"
	gatewaydomain "github.com/smallbiznis/abonix/internal/gateway/domain"
	"github.com/smallbiznis/abonix/internal/invoice"
	invoicedomain "github.com/smallbiznis/abonix/internal/invoice/domain"
	"github.com/smallbiznis/abonix/internal/ledger"
	ledgerdomain "github.com/smallbiznis/abonix/internal/ledger/domain"
	"github.com/smallbiznis/abonix/internal/payment"
	paymentdomain "github.com/smallbiznis/abonix/internal/payment/domain"
	"github.com/smallbiznis/abonix/internal/subscriber"
	subscriberdomain "github.com/smallbiznis/abonix/internal/subscriber/domain"
	"github.com/smallbiznis/abonix/internal/tariff"
	tariffdomain "github.com/smallbiznis/abonix/internal/tariff/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	subscriber.Module,
	ledger.Module,
	tariff.Module,
	gateway.Module,
	payment.Module,
	invoice.Module,
	dhcp.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	subscriberSvc subscriberdomain.Service
	ledgerSvc     ledgerdomain.Service
	tariffSvc     tariffdomain.Service
	gatewaySvc    gatewaydomain.Service
	paymentSvc    paymentdomain.Service
	invoiceSvc    invoicedomain.Service
	dhcpSvc       dhcpdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	SubscriberSvc subscriberdomain.Service
	LedgerSvc     ledgerdomain.Service
	TariffSvc     tariffdomain.Service
	GatewaySvc    gatewaydomain.Service
	PaymentSvc    paymentdomain.Service
	InvoiceSvc    invoicedomain.Service
	DhcpSvc       dhcpdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		subscriberSvc: p.SubscriberSvc,
		ledgerSvc:     p.LedgerSvc,
		tariffSvc:     p.TariffSvc,
		gatewaySvc:    p.GatewaySvc,
		paymentSvc:    p.PaymentSvc,
		invoiceSvc:    p.InvoiceSvc,
		dhcpSvc:       p.DhcpSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// Machine-facing endpoints for the terminal network and DHCP hooks.
	api.GET("/pay/", s.SecretRequired(), s.TerminalPay)
	api.GET("/dhcp_lever/", s.SecretRequired(), s.DhcpLever)

	// -------- Subscribers --------
	api.GET("/subscribers", s.ListSubscribers)
	api.POST("/subscribers", s.CreateSubscriber)
	api.GET("/subscribers/search", s.SearchSubscribers)
	api.GET("/subscribers/:uname", s.GetSubscriber)
	api.POST("/subscribers/:uname/balance", s.TopUpBalance)
	api.GET("/subscribers/:uname/ledger", s.LedgerHistory)
	api.POST("/subscribers/:uname/device", s.AttachDevice)
	api.DELETE("/subscribers/:uname/device", s.ClearDevice)
	api.POST("/subscribers/:uname/port", s.SetDevPort)
	api.POST("/subscribers/:uname/autoconnect", s.SetAutoconnect)
	api.POST("/subscribers/:uname/markers", s.SetMarkers)
	api.POST("/subscribers/:uname/ping", s.PingSubscriber)
	api.POST("/subscribers/:uname/free_lease", s.FreeLease)

	// -------- Tariffs --------
	api.GET("/subscribers/:uname/tariff", s.GetActiveAssignment)
	api.POST("/subscribers/:uname/tariff", s.PickTariff)
	api.DELETE("/subscribers/:uname/tariff", s.Unsubscribe)
	api.GET("/groups/:gid/tariffs", s.ListGroupTariffs)
	api.PUT("/groups/:gid/tariffs", s.SetGroupTariffs)
	api.POST("/groups/:gid/nas", s.AttachNASToGroup)

	// -------- Invoices --------
	api.GET("/subscribers/:uname/invoices", s.ListInvoices)
	api.POST("/subscribers/:uname/invoices", s.CreateInvoice)
	api.GET("/invoices/debtors", s.ListDebtors)
	api.POST("/invoices/:id/settle", s.SettleInvoice)

	// -------- Periodic pays --------
	api.GET("/subscribers/:uname/periodic_pays", s.ListPeriodicPays)
	api.POST("/subscribers/:uname/periodic_pays", s.UpsertPeriodicPay)
	api.DELETE("/periodic_pays/:id", s.DeletePeriodicPay)

	// -------- Reports --------
	api.GET("/fin_report", s.FinReport)
}
