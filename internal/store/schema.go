package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

const marketplaceEventsDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id            String,
    kind          LowCardinality(String),
    marketplace   LowCardinality(String),
    collection    String,
    token_mint    String,
    seller        String,
    buyer         String,
    price         Float64,
    fee           Float64,
    tx_signature  String,
    block_number  UInt64,
    block_hash    String,
    block_time    DateTime64(3, 'UTC'),
    ingested_at   DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(block_time)
ORDER BY (block_time, block_number, id)
TTL toDateTime(block_time) + INTERVAL 90 DAY
`

const bridgeEventsDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id                 String,
    direction          LowCardinality(String),
    source_chain       LowCardinality(String),
    destination_chain  LowCardinality(String),
    token_mint         String,
    sender             String,
    receiver           String,
    amount             Float64,
    fee                Float64,
    tx_signature       String,
    block_number       UInt64,
    block_hash         String,
    block_time         DateTime64(3, 'UTC'),
    ingested_at        DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(block_time)
ORDER BY (block_time, block_number, id)
TTL toDateTime(block_time) + INTERVAL 90 DAY
`

// EnsureSchema creates the database and event tables if they do not exist.
// Safe to run on every startup.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if c.database != "" {
		stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.database)
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create database %s: %w", c.database, err)
		}
	}

	for table, ddl := range map[string]string{
		c.table("marketplace_events"): marketplaceEventsDDL,
		c.table("bridge_events"):      bridgeEventsDDL,
	} {
		if err := c.conn.Exec(ctx, fmt.Sprintf(ddl, table)); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}

	log.Info().Str("database", c.database).Msg("ClickHouse schema ensured")
	return nil
}
