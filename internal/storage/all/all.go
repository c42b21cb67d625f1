// Package all links every storage backend into the binary.
package all

import (
	_ "github.com/JonMunkholm/modreports/internal/storage/mssql"
	_ "github.com/JonMunkholm/modreports/internal/storage/postgres"
	_ "github.com/JonMunkholm/modreports/internal/storage/sqlite"
)
