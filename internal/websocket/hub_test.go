package websocket

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"futures/internal/models"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub(zap.NewNop())

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := &OriginChecker{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
		allowAll: false,
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	checker := &OriginChecker{
		allowAll: true,
	}

	origins := []string{
		"http://localhost:3000",
		"https://evil.com",
		"http://anything.example.org",
	}

	for _, origin := range origins {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	// Fill the broadcast channel
	for i := 0; i < 10000; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	// Should not block, messages should be dropped
	time.Sleep(10 * time.Millisecond)

	if hub.DroppedMessages() == 0 {
		t.Log("No messages dropped (channel was not full)")
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(zap.NewNop())

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()

	select {
	case <-done:
		// OK - Run() exited
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_ClientReceivesPositionEvent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	openPrice := 100.0
	hub.BroadcastPositionEvent("positionFilled", &models.Position{
		ID:        "pos-1",
		AccountID: "acc-1",
		Symbol:    "BTCUSDT",
		Side:      models.SideLong,
		Leverage:  10,
		Quantity:  1.0,
		Status:    models.StatusFilled,
		OpenPrice: &openPrice,
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("empty message delivered")
		}
	case <-time.After(time.Second):
		t.Error("client did not receive broadcast")
	}

	hub.unregister <- client
}

func TestNewPositionEventMessage(t *testing.T) {
	openPrice := 100.0
	pnl := 5.0
	msg := NewPositionEventMessage("positionClosed", &models.Position{
		ID:          "pos-1",
		AccountID:   "acc-1",
		Symbol:      "BTCUSDT",
		Side:        models.SideLong,
		Status:      models.StatusClosed,
		OpenPrice:   &openPrice,
		Pnl:         &pnl,
		CloseReason: models.ReasonTakeProfit,
	})

	if msg.Type != MessageTypePositionClosed {
		t.Errorf("type = %s, want positionClosed", msg.Type)
	}
	if msg.Data.PositionID != "pos-1" {
		t.Errorf("position id = %s, want pos-1", msg.Data.PositionID)
	}
	if msg.Data.Pnl == nil || *msg.Data.Pnl != 5.0 {
		t.Errorf("pnl = %v, want 5", msg.Data.Pnl)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
}

// ============================================================
// Benchmarks
// ============================================================

// BenchmarkHub_Broadcast тестирует скорость broadcast
func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	msg := map[string]interface{}{
		"type": "test",
		"data": "benchmark message",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
}

// BenchmarkHub_BroadcastRaw тестирует скорость broadcast уже сериализованных данных
func BenchmarkHub_BroadcastRaw(b *testing.B) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	data := []byte(`{"type":"test","data":"benchmark message"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastRaw(data)
	}
}

// BenchmarkHub_BroadcastPositionEvent тестирует реальный use case
func BenchmarkHub_BroadcastPositionEvent(b *testing.B) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	openPrice := 64000.0
	liq := 57790.0
	p := &models.Position{
		ID:               "pos-1",
		AccountID:        "acc-1",
		Symbol:           "BTCUSDT",
		Side:             models.SideLong,
		Leverage:         10,
		MarginType:       models.MarginIsolated,
		OrderType:        models.OrderMarket,
		Quantity:         0.5,
		Status:           models.StatusFilled,
		OpenPrice:        &openPrice,
		LiquidationPrice: &liq,
		InitialMargin:    3200,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastPositionEvent("positionFilled", p)
	}
}

// BenchmarkOriginChecker_Check тестирует скорость проверки origin
func BenchmarkOriginChecker_Check(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		originChecker.Check("http://localhost:3000")
	}
}

// BenchmarkHub_ClientCount тестирует lock-free чтение
func BenchmarkHub_ClientCount(b *testing.B) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = hub.ClientCount()
	}
}

// BenchmarkHub_ConcurrentBroadcast тестирует конкурентный broadcast
func BenchmarkHub_ConcurrentBroadcast(b *testing.B) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	msg := map[string]string{"type": "test"}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			hub.Broadcast(msg)
		}
	})
}

// BenchmarkClientPool тестирует sync.Pool для клиентов
func BenchmarkClientPool(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		client := clientPool.Get().(*Client)
		clientPool.Put(client)
	}
}

// BenchmarkHub_ManyClients симулирует много клиентов
func BenchmarkHub_ManyClients(b *testing.B) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	// Симулируем 100 клиентов
	var clients []*Client
	for i := 0; i < 100; i++ {
		client := &Client{
			hub:  hub,
			send: make(chan []byte, clientSendBufferSize),
		}
		hub.register <- client
		clients = append(clients, client)

		// Запускаем горутину которая читает сообщения
		go func(c *Client) {
			for range c.send {
				// discard
			}
		}(client)
	}

	time.Sleep(50 * time.Millisecond)

	msg := map[string]string{"type": "test", "data": "benchmark"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
	b.StopTimer()

	// Cleanup
	for _, c := range clients {
		hub.unregister <- c
	}
}

// ============================================================
// Parallel Stress Test
// ============================================================

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	// Concurrent broadcasts
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.Broadcast(map[string]int{"goroutine": id, "op": j})
			}
		}(i)
	}

	// Concurrent ClientCount reads
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				_ = hub.ClientCount()
			}
		}()
	}

	wg.Wait()
}
