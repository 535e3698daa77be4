package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/spacemeshos/packetcrypt/announce"
	"github.com/spacemeshos/packetcrypt/config"
	"github.com/spacemeshos/packetcrypt/logging"
	"github.com/spacemeshos/packetcrypt/store"
	"github.com/spacemeshos/packetcrypt/verifier"
)

type command struct {
	cfg      *config.Config
	store    *store.Store
	verifier *verifier.Verifier
	out      io.Writer
}

func (c *command) output() io.Writer {
	if c.out == nil {
		return os.Stdout
	}
	return c.out
}

// splitRecords cuts data into records of size bytes.
func splitRecords(data []byte, size int) ([][]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", verifier.ErrBadLength, len(data), size)
	}
	records := make([][]byte, 0, len(data)/size)
	for len(data) > 0 {
		records = append(records, data[:size])
		data = data[size:]
	}
	return records, nil
}

// importHeaders stores the headers of every file, in order, starting at the
// configured first height.
func (c *command) importHeaders(ctx context.Context, files []string) error {
	logger := logging.FromContext(ctx)
	height := c.cfg.FirstHeight
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		headers, err := splitRecords(data, store.HeaderSize)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := c.store.PutHeaders(ctx, height, headers); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logger.Info("imported headers",
			zap.String("file", name),
			zap.Uint32("first", height),
			zap.Int("count", len(headers)),
		)
		height += uint32(len(headers))
	}
	return nil
}

// checkAnnouncements validates every announcement of every file and prints
// one result per announcement.
func (c *command) checkAnnouncements(ctx context.Context, files []string) error {
	rejected := 0
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		anns, err := splitRecords(data, announce.Size)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		results, err := c.verifier.ValidateAnnouncements(ctx, anns, c.cfg.Protocol)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for i, res := range results {
			h := announce.Hash(anns[i])
			fmt.Fprintf(c.output(), "%s[%d] %x %s\n", name, i, h, res)
			if res != announce.ResultOK {
				rejected++
			}
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%d announcements %w", rejected, errRejected)
	}
	return nil
}

// checkBlocks validates the block stored in each file.
func (c *command) checkBlocks(ctx context.Context, files []string) error {
	rejected := 0
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		b, err := verifier.DecodeBlock(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		res, err := c.verifier.ValidateBlock(ctx, b)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(c.output(), "%s height=%d %s\n", name, b.Height, res)
		if res != verifier.ResultOK {
			rejected++
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%d blocks %w", rejected, errRejected)
	}
	return nil
}
