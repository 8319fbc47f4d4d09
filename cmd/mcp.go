package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	coreconfig "github.com/AzielCF/az-post/core/config"
	"github.com/AzielCF/az-post/ui/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the post lifecycle MCP server using SSE",
	Long:  `Start an MCP (Model Context Protocol) server using Server-Sent Events (SSE) transport so AI agents can inspect posts, retry failures and trigger scheduler passes.`,
	Run:   mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("port", "", "Port for the SSE MCP server")
	mcpCmd.Flags().String("host", "", "Host for the SSE MCP server")
}

func mcpServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	if v, _ := cmd.Flags().GetString("port"); v != "" {
		cfg.MCP.Port = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.MCP.Host = v
	}

	ctx := context.Background()
	app, err := buildApplication(ctx, cfg)
	if err != nil {
		logrus.Fatalf("[MCP] %v", err)
	}
	if err := app.migrate(ctx); err != nil {
		logrus.Fatalf("[MCP] %v", err)
	}

	mcpServer := server.NewMCPServer(
		"az-post MCP Server",
		cfg.App.Version,
		server.WithToolCapabilities(true),
	)

	postHandler := mcp.InitMcpPosts(app.postService, app.engine)
	postHandler.AddPostTools(mcpServer)

	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", cfg.MCP.Host, cfg.MCP.Port)),
		server.WithKeepAlive(true),
	)

	addr := fmt.Sprintf("%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	logrus.Printf("Starting az-post MCP SSE server on %s", addr)
	logrus.Printf("SSE endpoint: http://%s/sse", addr)
	logrus.Printf("Message endpoint: http://%s/message", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		if err := sseServer.Shutdown(context.Background()); err != nil {
			logrus.Errorf("[MCP] shutdown: %v", err)
		}
	}()

	if err := sseServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Errorf("[MCP] server stopped: %v", err)
	}
	app.Close()
}
