package ws

import (
	"encoding/json"
	"sync"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// client is one dashboard socket. gorilla allows a single concurrent
// writer per connection, so writes go through mu.
type client struct {
	conn   *websocket.Conn
	userID int64
	role   models.Role
	mu     sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type Ws struct {
	connMap sync.Map // socketId -> *client
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.Message) {
	switch message.Type {
	case "ping":
		s.send(socketId, &comm.Message{Type: "pong"})
	default:
		log.Warnf("unknown event received from %s: %s", socketId, message.Type)
		s.SendError(socketId, "Unknown message type")
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn, userID int64, role models.Role) {
	s.connMap.Store(socketId, &client{conn: conn, userID: userID, role: role})
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
}

// Count returns the number of open sockets.
func (s *Ws) Count() int {
	count := 0
	s.connMap.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// Recipients lists the sockets a status change of patientID's scan goes
// to: that patient's own sockets and every staff socket.
func (s *Ws) Recipients(patientID int64) []string {
	var sockets []string
	s.connMap.Range(func(key, value any) bool {
		c := value.(*client)
		if c.role.Staff() || (c.role == models.RolePatient && c.userID == patientID) {
			sockets = append(sockets, key.(string))
		}
		return true
	})
	return sockets
}

// PushScanEvent delivers a scan-status message. It returns how many
// sockets received it.
func (s *Ws) PushScanEvent(patientID int64, m *comm.Message) int {
	out := &comm.Message{Type: m.Type, Data: m.Data}

	sent := 0
	for _, socketId := range s.Recipients(patientID) {
		if s.send(socketId, out) {
			sent++
		}
	}
	return sent
}

func (s *Ws) SendError(socketId string, errorMsg string) {
	data, _ := json.Marshal(map[string]string{"error": errorMsg})
	s.send(socketId, &comm.Message{Type: "error", Data: data})
}

func (s *Ws) send(socketId string, m *comm.Message) bool {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return false
	}
	if err := c.(*client).writeJSON(m); err != nil {
		log.Errorf("write to socket %s: %v", socketId, err)
		return false
	}
	return true
}
