package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/geo-attendance-api/internal/middleware"
	"github.com/noah-isme/geo-attendance-api/internal/models"
)

func dialAs(t *testing.T, hub *Hub, claims *models.JWTClaims) (*websocket.Conn, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		Handler(hub)(c)
	})
	server := httptest.NewServer(router)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		server.Close()
		if resp != nil {
			return nil, func() {}
		}
		require.NoError(t, err)
	}
	cleanup := func() {
		if conn != nil {
			conn.Close()
		}
		server.Close()
	}
	return conn, cleanup
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func TestHubDeliversToStudent(t *testing.T) {
	hub := NewHub(nil)
	conn, cleanup := dialAs(t, hub, studentClaims("student-1"))
	require.NotNil(t, conn)
	defer cleanup()

	require.Eventually(t, func() bool {
		return hub.ConnectedStudents() == 1
	}, time.Second, 10*time.Millisecond)

	payload := []byte(`{"type":"attendance_session_started"}`)
	assert.True(t, hub.SendToStudent("student-1", payload))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(msg))
}

func TestHubSendToDisconnectedStudent(t *testing.T) {
	hub := NewHub(nil)
	assert.False(t, hub.SendToStudent("nobody", []byte("{}")))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	first, cleanupFirst := dialAs(t, hub, studentClaims("student-1"))
	require.NotNil(t, first)
	defer cleanupFirst()
	second, cleanupSecond := dialAs(t, hub, studentClaims("student-2"))
	require.NotNil(t, second)
	defer cleanupSecond()

	require.Eventually(t, func() bool {
		return hub.ConnectedStudents() == 2
	}, time.Second, 10*time.Millisecond)

	payload := []byte(`{"type":"broadcast_update"}`)
	hub.Broadcast(payload)

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, string(payload), string(msg))
	}
}

func TestHubRejectsTeachers(t *testing.T) {
	hub := NewHub(nil)
	conn, cleanup := dialAs(t, hub, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	defer cleanup()
	assert.Nil(t, conn, "non-student upgrade refused")
	assert.Zero(t, hub.ConnectedStudents())
}

func TestHubRejectsAnonymous(t *testing.T) {
	hub := NewHub(nil)
	conn, cleanup := dialAs(t, hub, nil)
	defer cleanup()
	assert.Nil(t, conn)
}

func TestHubSendAfterDisconnect(t *testing.T) {
	hub := NewHub(nil)
	conn, cleanup := dialAs(t, hub, studentClaims("student-1"))
	require.NotNil(t, conn)
	defer cleanup()

	require.Eventually(t, func() bool {
		return hub.ConnectedStudents() == 1
	}, time.Second, 10*time.Millisecond)

	hub.mu.RLock()
	var c *client
	for cl := range hub.clients["student-1"] {
		c = cl
	}
	hub.mu.RUnlock()
	require.NotNil(t, c)

	// A delivery can snapshot the client set right before the disconnect
	// lands. Queueing on the departed client must fail, not panic.
	hub.unregister(c)
	c.close()

	require.NotPanics(t, func() {
		assert.False(t, c.trySend([]byte("{}")))
	})
	assert.False(t, hub.SendToStudent("student-1", []byte("{}")))
}

func TestHubConcurrentSendAndDisconnect(t *testing.T) {
	hub := NewHub(nil)
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, studentClaims("student-1"))
		Handler(hub)(c)
	})
	server := httptest.NewServer(router)
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				continue
			}
			conn.Close()
		}
	}()

	payload := []byte(`{"type":"attendance_marked"}`)
	for {
		select {
		case <-done:
			return
		default:
			hub.SendToStudent("student-1", payload)
			hub.Broadcast(payload)
		}
	}
}

func TestHubUnregisterOnClose(t *testing.T) {
	hub := NewHub(nil)
	conn, cleanup := dialAs(t, hub, studentClaims("student-1"))
	require.NotNil(t, conn)
	defer cleanup()

	require.Eventually(t, func() bool {
		return hub.ConnectedStudents() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ConnectedStudents() == 0
	}, time.Second, 10*time.Millisecond)
}
