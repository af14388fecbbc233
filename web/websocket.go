package web

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bondrotor/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 运维接口部署在内网，来源校验交给 API 密钥
	},
}

// handleWebSocket 实时日志推送
// 客户端带 subscribe_logs=true 订阅日志流，连接断开自动退订
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var logCh chan *storage.LogRecord
	if c.Query("subscribe_logs") == "true" {
		if ls := s.logStorage(); ls != nil {
			logCh = ls.Subscribe()
			defer ls.Unsubscribe(logCh)
		}
	}

	if logCh != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case <-done:
					return
				case record, ok := <-logCh:
					if !ok {
						return
					}
					message := map[string]interface{}{
						"type": "log",
						"data": map[string]interface{}{
							"id":        record.ID,
							"timestamp": record.Timestamp,
							"level":     record.Level,
							"message":   record.Message,
						},
					}
					data, err := json.Marshal(message)
					if err != nil {
						continue
					}
					if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				}
			}
		}()
	}

	// 阻塞读直到对端断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
