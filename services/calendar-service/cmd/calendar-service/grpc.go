package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/calendarhub/libs/config"
	"github.com/md-rashed-zaman/calendarhub/libs/grpcx"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/grpcserver"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/registry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, engine grpcserver.Engine, reg registry.Registry) error {
	port, err := config.Port("GRPC_PORT", "9095")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerRequestIDInterceptor()),
	)
	grpcserver.Register(srv, engine, reg, logger)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
