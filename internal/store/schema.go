package store

// Schema v1 - entities, metadata, locations and placements
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Every entity, attributes held as a JSON object
CREATE TABLE IF NOT EXISTS entities (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  data TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

-- String metadata, one row per key
CREATE TABLE IF NOT EXISTS metadata (
  entity_id TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (entity_id, key)
);

-- Storage locations
CREATE TABLE IF NOT EXISTS locations (
  id TEXT PRIMARY KEY,
  name TEXT UNIQUE NOT NULL,
  kind TEXT NOT NULL,
  root TEXT NOT NULL DEFAULT '',
  priority INTEGER NOT NULL DEFAULT 100
);

-- Component placements
CREATE TABLE IF NOT EXISTS component_locations (
  component_id TEXT NOT NULL,
  location_id TEXT NOT NULL,
  resource_identifier TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (component_id, location_id)
);

CREATE INDEX IF NOT EXISTS idx_component_locations_location ON component_locations(location_id);
`

// Schema v2 - indexes for the lookups the publish protocol repeats
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(type, json_extract(data, '$.name'));
CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(json_extract(data, '$.parent.id'));
CREATE INDEX IF NOT EXISTS idx_entities_container ON entities(json_extract(data, '$.container.id'));
`
