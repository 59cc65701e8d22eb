// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles server configuration.

Configuration is resolved in precedence order: CLI flags, environment
variables, then a .env file in the working directory (loaded via
godotenv).

Required settings:

  - DATABASE_URL (-d): sqlite path or postgres connection string
  - DRIVER_KEY_SALT (-driver-salt): secret for driver key HMAC
  - CSRF_TOKEN_SALT (-csrf-salt): secret for CSRF token HMAC

Optional settings:

  - PORT (-p): server port (default 3319)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - REDIS_ADDR (-redis): enables cross-instance event fan-out
  - INACTIVITY_MINUTES (-inactivity): round auto-finish window (default 30)
  - TRACKER_BASE_URL / TRACKER_TOKEN: issue tracker access; without them
    issue listing and write-back report "tracker not configured"
*/
package cliparse
