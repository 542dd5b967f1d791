// Package gemtot is the GemTot iBeacon SDK.
//
// A host application names its beacon; the SDK derives a stable proximity
// UUID from the name, persists the beacon configuration and advertises it on
// the Bluetooth radio. The same name always yields the same UUID, on every
// platform, so a scanner only needs the name to find the beacon.
//
// # Getting Started
//
//	sdk, err := gemtot.New(ctx,
//		gemtot.WithSettings(settings),
//		gemtot.WithRadio(radio),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer gemtot.CloseWithLog(sdk, nil, "gemtot sdk")
//
//	if _, err := sdk.SetBeaconName(ctx, "Front Door"); err != nil {
//		log.Fatal(err)
//	}
//	if err := sdk.StartBeacon(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # UUID Derivation
//
// Names are hashed with SHA-1 under a fixed namespace into an RFC 4122
// version 5 UUID; see package beaconid. A name that is already a canonical
// UUID is used as is.
//
// # Radio State
//
// Hosts forward Bluetooth power state changes with HandleRadioState. When
// the radio powers on, a beacon that was broadcasting before is restored,
// and subscribers receive a notify.Event either way.
//
// # Errors
//
// Methods return *Error values whose Kind says what went wrong
// (validation, radio, storage and so on). The underlying sentinel errors of
// the beacon, beaconid, store and broadcaster packages remain reachable
// through errors.Is.
package gemtot
