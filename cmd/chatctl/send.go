package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/moving-chat/internal/domain"
)

func sendCmd() *cobra.Command {
	var attach []string
	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send a message, optionally with files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 1 {
				text = args[0]
			}
			return runSend(cmd, text, attach)
		},
	}
	cmd.Flags().StringSliceVarP(&attach, "file", "f", nil, "file to attach (repeatable)")
	return cmd
}

func runSend(cmd *cobra.Command, text string, paths []string) error {
	cfg, logger, err := environment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sc, err := sessionContext(cfg)
	if err != nil {
		return err
	}

	if strings.TrimSpace(text) == "" && len(paths) == 0 {
		return fmt.Errorf("nothing to send")
	}

	files := make([]domain.LocalFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, domain.LocalFile{
			Name:        filepath.Base(path),
			SizeBytes:   int64(len(data)),
			ContentType: http.DetectContentType(data),
			Data:        data,
		})
	}

	session := openSession(cfg, logger, sc, nil)
	defer session.Close()

	ctx := context.Background()
	if _, err := session.Open(ctx, conversationID); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	if err := session.SetDraftText(text); err != nil {
		return err
	}
	if len(files) > 0 {
		if _, err := session.AddFiles(files...); err != nil {
			return err
		}
	}
	msg, err := session.Send(ctx)
	if err != nil {
		return err
	}
	printMessage(cmd.OutOrStdout(), sc.UserID, msg)
	return nil
}
