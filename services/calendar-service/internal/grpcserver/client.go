package grpcserver

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarhub/libs/grpcx"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Client calls a remote CalendarEngine.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(addr string) (*Client, error) {
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{
		Timeout: 5 * time.Second,
		JSON:    true,
	})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) CheckAvailability(ctx context.Context, req *wire.AvailabilityRequest) (*wire.AvailabilityResponse, error) {
	out := new(wire.AvailabilityResponse)
	return out, c.invoke(ctx, "CheckAvailability", req, out)
}

func (c *Client) CreateBooking(ctx context.Context, req *wire.BookingRequest) (*wire.BookingResponse, error) {
	out := new(wire.BookingResponse)
	return out, c.invoke(ctx, "CreateBooking", req, out)
}

func (c *Client) CancelBooking(ctx context.Context, req *wire.CancelRequest) (*wire.CancelResponse, error) {
	out := new(wire.CancelResponse)
	return out, c.invoke(ctx, "CancelBooking", req, out)
}

func (c *Client) ListEvents(ctx context.Context, req *wire.ListEventsRequest) (*wire.ListEventsResponse, error) {
	out := new(wire.ListEventsResponse)
	return out, c.invoke(ctx, "ListEvents", req, out)
}

func (c *Client) HealthCheck(ctx context.Context, req *wire.HealthRequest) (*wire.HealthResponse, error) {
	out := new(wire.HealthResponse)
	return out, c.invoke(ctx, "HealthCheck", req, out)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// KindOf recovers the error kind the server attached to a status message.
func KindOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	kind, _, found := strings.Cut(st.Message(), ": ")
	if !found {
		return ""
	}
	return kind
}
