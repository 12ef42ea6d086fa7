package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"matchd/codec"
	"matchd/domain/book"
	"matchd/domain/series"
	"matchd/metrics"
	"matchd/service"
)

func TestServeAppliesRequestsAndFeedsIndications(t *testing.T) {
	feedConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("feed listen: %v", err)
	}
	defer feedConn.Close()

	srv, err := NewUDP("127.0.0.1:0", feedConn.LocalAddr().String(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	defer srv.Close()

	eng := service.New(
		zerolog.Nop(),
		metrics.New(prometheus.NewRegistry()),
		book.NewArena(64, 8),
		srv,
		nil, nil, nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, eng, nil, 0, 5*time.Millisecond) }()

	client, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatalf("client dial: %v", err)
	}
	defer client.Close()

	s := series.ID{Country: 1, Market: 2, Group: 5, Commodity: 100, Expiration: 2612}
	frame, err := codec.EncodeRequest(codec.Request{
		Msg:    codec.MsgCreateBook,
		Series: s,
		Op:     codec.OperationID{Gateway: 1, Sequence: 1},
	})
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if _, err := client.Write(frame); err != nil {
		t.Fatalf("client write: %v", err)
	}

	// Expect book_available then confirmation on the feed.
	want := []codec.MsgID{codec.MsgBookAvailable, codec.MsgConfirmation}
	buf := make([]byte, maxDatagram)
	for _, wantMsg := range want {
		_ = feedConn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := feedConn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("feed read (want %v): %v", wantMsg, err)
		}
		ind, err := codec.DecodeIndication(buf[:n])
		if err != nil {
			t.Fatalf("DecodeIndication: %v", err)
		}
		if ind.Msg != wantMsg {
			t.Fatalf("feed msg = %v, want %v", ind.Msg, wantMsg)
		}
		if ind.Series != s {
			t.Fatalf("feed series = %v, want %v", ind.Series, s)
		}
	}
}

func TestMalformedDatagramIsDropped(t *testing.T) {
	srv, err := NewUDP("127.0.0.1:0", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	defer srv.Close()

	eng := service.New(
		zerolog.Nop(),
		metrics.New(prometheus.NewRegistry()),
		book.NewArena(64, 8),
		srv,
		nil, nil, nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, eng, nil, 0, 5*time.Millisecond) }()

	client, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatalf("client dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte{0xFF, 0x01}); err != nil {
		t.Fatalf("client write: %v", err)
	}

	// The loop must survive the junk; cancelling stops it cleanly.
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
