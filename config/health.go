package config

import (
	"database/sql"
	"errors"
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
)

var (
	errConnClosed   = errors.New("connection closed")
	errNotConnected = errors.New("not connected")
)

type HealthChecker struct {
	db       *sql.DB
	amqpConn *amqp.Connection
	mqtt     mqtt.Client
	rdb      *goredis.Client
}

func NewHealthChecker(db *sql.DB, amqpConn *amqp.Connection, mqttClient mqtt.Client, rdb *goredis.Client) *HealthChecker {
	return &HealthChecker{db: db, amqpConn: amqpConn, mqtt: mqttClient, rdb: rdb}
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

func (h *HealthChecker) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	deps := gin.H{}
	healthy := true

	report := func(name string, err error) {
		if err != nil {
			deps[name] = gin.H{"status": "down", "error": err.Error()}
			healthy = false
			return
		}
		deps[name] = gin.H{"status": "up"}
	}

	report("postgres", h.db.PingContext(ctx))
	report("redis", h.rdb.Ping(ctx).Err())

	var amqpErr, mqttErr error
	if h.amqpConn.IsClosed() {
		amqpErr = errConnClosed
	}
	if !h.mqtt.IsConnectionOpen() {
		mqttErr = errNotConnected
	}
	report("rabbitmq", amqpErr)
	report("mqtt", mqttErr)

	status, overall := http.StatusOK, "healthy"
	if !healthy {
		status, overall = http.StatusServiceUnavailable, "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}
