package core

import (
	"context"
	"testing"
)

func benchmarkGetMap(b *testing.B, clients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(fakeMaps{"bench": `{"name":"bench"}`}, nil, nil)
	go c.Run(ctx)
	defer c.Close()

	replies := make([]*ReplyChannel, clients)
	ids := make([]ClientID, clients)
	for i := range clients {
		ids[i] = ClientID("c" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
		replies[i] = NewReplyChannel()
		_ = c.Send(Message{SenderID: ids[i], Body: Identify{ID: ids[i], Reply: replies[i]}})
		_ = c.Send(Message{SenderID: ids[i], Body: JoinGroup{Group: "bench"}})
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		n := i % clients
		_ = c.Send(Message{SenderID: ids[n], Body: GetMap{Name: "bench"}})
		if _, err := replies[n].Receive(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetMap_10(b *testing.B)  { benchmarkGetMap(b, 10) }
func BenchmarkGetMap_100(b *testing.B) { benchmarkGetMap(b, 100) }
func BenchmarkGetMap_500(b *testing.B) { benchmarkGetMap(b, 500) }
