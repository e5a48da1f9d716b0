// Package ingest reads raw healthcare records from data sources and
// normalizes them into canonical content models.
//
// An Adapter streams raw records from a source (files today); an Ingester
// parses each record into clinical or operational content. The Engine
// wires the two together and collects per-record failures without
// aborting the batch.
package ingest
