package mysql

// Schema assumed provisioned before start (the integration test creates it):
//
//   CREATE TABLE cities (
//     city_id     VARCHAR(64)  NOT NULL PRIMARY KEY,
//     city_name   VARCHAR(255) NOT NULL,
//     lat         DOUBLE       NOT NULL,
//     lon         DOUBLE       NOT NULL,
//     modified_at TIMESTAMP    NULL,
//     updated_at  TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
//     UNIQUE KEY ux_cities_name (city_name)
//   );
//   CREATE TABLE sync_state (
//     sync_key  VARCHAR(32) NOT NULL PRIMARY KEY,
//     last_sync DATETIME    NOT NULL
//   );

// Manual-edit path: overwrite on conflict.
const upsertCitySQL = `
INSERT INTO cities
  (city_id, city_name, lat, lon, modified_at)
VALUES
  (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  city_name   = VALUES(city_name),
  lat         = VALUES(lat),
  lon         = VALUES(lon),
  modified_at = VALUES(modified_at),
  updated_at  = CURRENT_TIMESTAMP
`

// Sync path: skip on conflict so incremental sync never clobbers manual
// corrections. Duplicate-key hits are expected, not failures.
const bulkInsertPrefix = `INSERT IGNORE INTO cities (city_id, city_name, lat, lon, modified_at) VALUES `

const getCitySQL = `
SELECT city_id, city_name, lat, lon, modified_at
FROM cities
WHERE city_id = ?
`

const getCityByNameSQL = `
SELECT city_id, city_name, lat, lon, modified_at
FROM cities
WHERE LOWER(city_name) = ?
`

const deleteCitySQL = `DELETE FROM cities WHERE city_id = ?`

const syncKey = "city_sync"

const getWatermarkSQL = `SELECT last_sync FROM sync_state WHERE sync_key = ?`

const setWatermarkSQL = `
INSERT INTO sync_state (sync_key, last_sync)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE last_sync = VALUES(last_sync)
`
