package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"hubnode/core"
	"hubnode/rpc"
)

func migrationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migration"}
	cmd.AddCommand(migrationBackfillMessagesCmd())
	cmd.AddCommand(migrationBackfillOnChainEventsCmd())
	return cmd
}

// migrationBackfillMessagesCmd replays a file of newline-delimited
// hex-encoded wire frames (one per submitted message) through a fresh
// engine, merging each and reporting how many applied.
func migrationBackfillMessagesCmd() *cobra.Command {
	var network string
	var path string
	cmd := &cobra.Command{
		Use:   "backfill-messages",
		Short: "replay a dump of wire-framed messages through the engine",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runBackfillMessages(network, path))
		},
	}
	cmd.Flags().StringVar(&network, "network", "hub-mainnet", "network id messages must match")
	cmd.Flags().StringVar(&path, "file", "", "path to a newline-delimited hex-frame dump")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runBackfillMessages(network, path string) int {
	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).Error("open backfill file")
		return 1
	}
	defer f.Close()

	db := core.NewInMemoryKV()
	engine, err := core.NewEngine(db, core.EngineConfig{
		Network:       network,
		DefaultLimits: core.LimitsFor(0, core.FarcasterEpoch),
	})
	if err != nil {
		log.WithError(err).Error("start engine")
		return 1
	}

	ctx := context.Background()
	var total, applied int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		total++
		raw, err := hex.DecodeString(string(line))
		if err != nil {
			log.WithError(err).Warn("backfill: skipping malformed line")
			continue
		}
		msg, err := rpc.DecodeMessageFrame(raw)
		if err != nil {
			log.WithError(err).Warn("backfill: skipping undecodable frame")
			continue
		}
		ok, err := engine.SubmitMessage(ctx, msg)
		if err != nil {
			log.WithError(err).Warn("backfill: message rejected")
			continue
		}
		if ok {
			applied++
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("scan backfill file")
		return 1
	}
	fmt.Printf("backfill-messages: %d read, %d applied\n", total, applied)
	return 0
}

// backfillEvent is the JSON-line shape migration backfill-onchain-events
// reads; a thin mirror of core.OnChainEvent restricted to JSON-safe types.
type backfillEvent struct {
	Fid             core.Fid             `json:"fid"`
	Type            core.OnChainEventType `json:"type"`
	BlockNumber     uint64                `json:"blockNumber"`
	BlockHash       string                `json:"blockHash"`
	TransactionHash string                `json:"transactionHash"`
	LogIndex        uint32                `json:"logIndex"`
	IdRegisterBody  *core.IdRegisterBody  `json:"idRegisterBody,omitempty"`
	SignerBody      *core.SignerBody      `json:"signerBody,omitempty"`
	StorageBody     *core.StorageRentBody `json:"storageBody,omitempty"`
}

func migrationBackfillOnChainEventsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "backfill-onchain-events",
		Short: "replay a dump of JSON-line on-chain events through the engine",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runBackfillOnChainEvents(path))
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "path to a newline-delimited JSON event dump")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runBackfillOnChainEvents(path string) int {
	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).Error("open backfill file")
		return 1
	}
	defer f.Close()

	db := core.NewInMemoryKV()
	engine, err := core.NewEngine(db, core.EngineConfig{
		Network:       "hub-mainnet",
		DefaultLimits: core.LimitsFor(0, core.FarcasterEpoch),
	})
	if err != nil {
		log.WithError(err).Error("start engine")
		return 1
	}

	var total, ingested int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		total++
		var be backfillEvent
		if err := json.Unmarshal(line, &be); err != nil {
			log.WithError(err).Warn("backfill: skipping malformed event")
			continue
		}
		ev, err := be.toCoreEvent()
		if err != nil {
			log.WithError(err).Warn("backfill: skipping invalid event")
			continue
		}
		if err := engine.IngestOnChainEvent(ev); err != nil {
			log.WithError(err).Warn("backfill: event rejected")
			continue
		}
		ingested++
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("scan backfill file")
		return 1
	}
	fmt.Printf("backfill-onchain-events: %d read, %d ingested\n", total, ingested)
	return 0
}

func (be backfillEvent) toCoreEvent() (core.OnChainEvent, error) {
	blockHash, err := decodeHash32(be.BlockHash)
	if err != nil {
		return core.OnChainEvent{}, err
	}
	txHash, err := decodeHash32(be.TransactionHash)
	if err != nil {
		return core.OnChainEvent{}, err
	}
	return core.OnChainEvent{
		Fid:             be.Fid,
		Type:            be.Type,
		BlockNumber:     be.BlockNumber,
		BlockHash:       blockHash,
		TransactionHash: txHash,
		LogIndex:        be.LogIndex,
		IdRegisterBody:  be.IdRegisterBody,
		SignerBody:      be.SignerBody,
		StorageBody:     be.StorageBody,
	}, nil
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
