package telegram

import "otogi-bangmap/pkg/otogi"

// DriverType is the "type" value that selects this driver in the drivers config.
const DriverType = "telegram"

// DriverPlatform is stamped on every event and sink this driver produces.
const DriverPlatform = otogi.PlatformTelegram
