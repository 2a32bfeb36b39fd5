// Package store persists fetched candle series and ticks to Postgres.
//
// Expected schema:
//
//	CREATE TABLE candles (
//	    symbol     TEXT             NOT NULL,
//	    interval_s INTEGER          NOT NULL,
//	    epoch      BIGINT           NOT NULL,
//	    open       DOUBLE PRECISION NOT NULL,
//	    high       DOUBLE PRECISION NOT NULL,
//	    low        DOUBLE PRECISION NOT NULL,
//	    close      DOUBLE PRECISION NOT NULL,
//	    PRIMARY KEY (symbol, interval_s, epoch)
//	);
//
//	CREATE TABLE ticks (
//	    symbol      TEXT             NOT NULL,
//	    epoch       BIGINT           NOT NULL,
//	    quote       DOUBLE PRECISION NOT NULL,
//	    received_at TIMESTAMPTZ      NOT NULL,
//	    PRIMARY KEY (symbol, epoch)
//	);
package store
