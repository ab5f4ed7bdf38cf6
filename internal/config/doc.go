// Package config provides centralized configuration management for the
// panel pipeline. It loads configuration from multiple sources, validates
// it eagerly, and exposes a type-safe API to the rest of the pipeline.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of
// precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// Environment variables follow the POSPANEL_* pattern:
//
//	POSPANEL_PIPELINE_BRAND_FILTER="BRAND X"
//	POSPANEL_PIPELINE_WEEK_ORIGIN=2021-01-03
//	POSPANEL_LOGGING_LEVEL=debug
//
// # Pipeline Configuration
//
// The pipeline section carries the ingestion contract: one
// retailer_data_contracts entry per retailer (schema family, raw column
// bindings, header offset), per-retailer availability flags under
// retailers, the volume_sales_factor_by_retailer fallback map, the
// base-price fallback thresholds, the promotional-depth clip bounds,
// and the global week-number origin date.
//
// An incomplete or internally inconsistent configuration is rejected at
// Load time with a CONFIG_INVALID pipeline error; nothing is read from
// disk past a bad configuration.
package config
