package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/pdlp/internal/device"
	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrBadConnection = errors.New("gateway: invalid connection handle")

type operationRequest struct {
	Button string `json:"button" binding:"required"`
}

type sensorRequest struct {
	Sensor   string          `json:"sensor" binding:"required"`
	Value    services.Vector `json:"value"`
	Original uint16          `json:"original"`
	// Reading is degrees Celsius or percent humidity; when set it is
	// encoded into Original.
	Reading *float32 `json:"reading"`
}

type detailRequest struct {
	UniqueID uint16 `json:"unique_id"`
	ParamID  uint8  `json:"param_id"`
	Length   uint32 `json:"length"`
}

type startRequest struct {
	Package     string  `json:"package" binding:"required"`
	NotifyApp   string  `json:"notify_app"`
	Class       string  `json:"class"`
	SharingInfo *string `json:"sharing_info"`
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"uptime":      time.Since(s.appeared).String(),
			"service":     s.opts.ID,
			"version":     version,
			"connections": s.opts.Arena.Len(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.opts.Link != nil {
		r.GET("/link", gin.WrapH(s.opts.Link))
	}

	r.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"connections": s.opts.Arena.Snapshot()})
	})

	r.GET("/connections/:conn", func(c *gin.Context) {
		e, ok := s.engine(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, e.Snapshot())
	})

	r.POST("/connections/:conn/operation", func(c *gin.Context) {
		var req operationRequest
		if !bind(c, &req) {
			return
		}
		button, err := services.ParseButtonID(req.Button)
		if err != nil {
			respondError(c, err)
			return
		}
		s.indicate(c, "operation", func(e *link.Engine) error {
			return e.NotifyOperation(button)
		})
	})

	r.POST("/connections/:conn/sensor", func(c *gin.Context) {
		var req sensorRequest
		if !bind(c, &req) {
			return
		}
		t, err := services.ParseSensorType(req.Sensor)
		if err != nil {
			respondError(c, err)
			return
		}
		original := req.Original
		if req.Reading != nil {
			switch t {
			case services.SensorTemperature:
				original = device.EncodeTemperature(*req.Reading)
			case services.SensorHumidity:
				original = device.EncodeHumidity(*req.Reading)
			}
		}
		if s.opts.Device != nil {
			if err := s.opts.Device.SetReading(t, device.Reading{Value: req.Value, Original: original}); err != nil {
				respondError(c, err)
				return
			}
		}
		s.indicate(c, "sensor", func(e *link.Engine) error {
			return e.NotifySensor(t, req.Value, original)
		})
	})

	r.POST("/connections/:conn/notify-detail", func(c *gin.Context) {
		var req detailRequest
		if !bind(c, &req) {
			return
		}
		s.indicate(c, "notify_detail", func(e *link.Engine) error {
			return e.GetNotifyDetailData(req.UniqueID, req.ParamID, req.Length)
		})
	})

	r.POST("/connections/:conn/start-application", func(c *gin.Context) {
		var req startRequest
		if !bind(c, &req) {
			return
		}
		app := services.StartApplication{
			Package:   []byte(req.Package),
			NotifyApp: []byte(req.NotifyApp),
			Class:     []byte(req.Class),
		}
		if req.SharingInfo != nil {
			app.SharingInfo = []byte(*req.SharingInfo)
		}
		s.indicate(c, "start_application", func(e *link.Engine) error {
			return e.StartApplication(app)
		})
	})

	r.GET("/device", func(c *gin.Context) {
		if s.opts.Device == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no device application"})
			return
		}
		c.JSON(http.StatusOK, s.opts.Device.State())
	})
}

func bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) engine(c *gin.Context) (*link.Engine, bool) {
	raw, err := strconv.ParseUint(c.Param("conn"), 10, 16)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %q", ErrBadConnection, c.Param("conn")))
		return nil, false
	}
	e, err := s.opts.Arena.Lookup(protocol.ConnHandle(raw))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return e, true
}

func (s *Server) indicate(c *gin.Context, what string, fn func(e *link.Engine) error) {
	e, ok := s.engine(c)
	if !ok {
		return
	}
	if err := fn(e); err != nil {
		log.Debug().Err(err).Uint16("conn", uint16(e.Conn())).Str("indication", what).Msg("gateway indication failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "indicating", "connection": e.Snapshot()})
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, link.ErrUnknownConnection), errors.Is(err, link.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, link.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrBadConnection),
		errors.Is(err, link.ErrInvalidParamID),
		errors.Is(err, link.ErrBufferOverflow),
		errors.Is(err, services.ErrInvalidSensor),
		errors.Is(err, services.ErrInvalidButton):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
