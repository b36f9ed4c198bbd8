package uat

import "time"

// AddressQualifier classifies the 24-bit address in an ADS-B HDR.
type AddressQualifier int

const (
	AddrADSBICAO AddressQualifier = iota
	AddrADSBOther
	AddrTISBICAO
	AddrTISBTrackFile
	AddrVehicle
	AddrFixedBeacon
	AddrADSROther
	AddrReserved
)

func (q AddressQualifier) String() string {
	switch q {
	case AddrADSBICAO:
		return "adsb_icao"
	case AddrADSBOther:
		return "adsb_other"
	case AddrTISBICAO:
		return "tisb_icao"
	case AddrTISBTrackFile:
		return "tisb_trackfile"
	case AddrVehicle:
		return "vehicle"
	case AddrFixedBeacon:
		return "fixed_beacon"
	case AddrADSROther:
		return "adsr_other"
	default:
		return "reserved"
	}
}

// AirGroundState is the SV airground_state field.
type AirGroundState int

const (
	StateAirborneSubsonic AirGroundState = iota
	StateAirborneSupersonic
	StateGround
	StateReserved
)

func (s AirGroundState) String() string {
	switch s {
	case StateAirborneSubsonic:
		return "airborne"
	case StateAirborneSupersonic:
		return "supersonic"
	case StateGround:
		return "ground"
	default:
		return "reserved"
	}
}

// VVSource identifies whether vertical velocity is barometric or geometric.
type VVSource int

const (
	VVGeometric VVSource = iota
	VVBarometric
)

func (v VVSource) String() string {
	if v == VVGeometric {
		return "geometric"
	}
	return "barometric"
}

// Emergency is the MS emergency/priority status field.
type Emergency int

const (
	EmergencyNone Emergency = iota
	EmergencyGeneral
	EmergencyMedical
	EmergencyNoRadio
	EmergencyUnlawful
	EmergencyDowned
	EmergencyReserved
)

func (e Emergency) String() string {
	switch e {
	case EmergencyNone:
		return "none"
	case EmergencyGeneral:
		return "general"
	case EmergencyMedical:
		return "medical"
	case EmergencyNoRadio:
		return "nordo"
	case EmergencyUnlawful:
		return "unlawful"
	case EmergencyDowned:
		return "downed"
	default:
		return "reserved"
	}
}

// SilSupplement distinguishes the two SIL interpretation conventions.
type SilSupplement int

const (
	SilPerHour SilSupplement = iota
	SilPerSample
)

func (s SilSupplement) String() string {
	if s == SilPerHour {
		return "per_hour"
	}
	return "per_sample"
}

// SelectedAltitudeType is the TS altitude source.
type SelectedAltitudeType int

const (
	AltitudeMCPFCU SelectedAltitudeType = iota
	AltitudeFMS
)

func (a SelectedAltitudeType) String() string {
	if a == AltitudeMCPFCU {
		return "mcp_fcu"
	}
	return "fms"
}

// Position is a decoded lat/lon pair, degrees.
type Position struct {
	Lat float64
	Lon float64
}

// AircraftSize is a decoded length/width pair, metres.
type AircraftSize struct {
	Length float64
	Width  float64
}

// aircraftSizeTable is DO-282B Table 2-30 (length, width) in metres.
var aircraftSizeTable = [16]AircraftSize{
	{0, 0},
	{15, 23},
	{25, 28.5},
	{25, 34},
	{35, 33},
	{35, 38},
	{45, 39.5},
	{45, 45},
	{55, 45},
	{55, 52},
	{65, 59.5},
	{65, 67},
	{75, 72.5},
	{75, 80},
	{85, 80},
	{85, 90},
}

// CapabilityCodes is the MS capability_codes group.
type CapabilityCodes struct {
	UATIn          bool
	ESIn           bool
	TCASOperational bool
}

// OperationalModes is the MS operational_modes group.
type OperationalModes struct {
	TCASRAActive bool
	IdentActive  bool
	ATCServices  bool
}

// ModeIndicators is the TS mode-indicator flag group.
type ModeIndicators struct {
	Autopilot    bool
	VNAV         bool
	AltitudeHold bool
	Approach     bool
	LNAV         bool
}

// AdsbRecord is the fully decoded downlink record. Every field beyond HDR
// is optional; a nil pointer or zero-value bool group means "not
// transmitted / not derivable", never a sentinel value.
type AdsbRecord struct {
	// HDR
	PayloadType      int
	AddressQualifier AddressQualifier
	Address          uint32 // 24 bits

	// SV
	Position           *Position
	NIC                *int
	PressureAltitude   *float64
	GeometricAltitude  *float64
	AirGroundState     *AirGroundState
	GroundSpeedKt      *float64
	TrueTrackDeg       *float64
	MagneticHeadingDeg *float64
	TrueHeadingDeg     *float64
	VerticalVelocityFpm *float64
	VerticalVelocitySrc *VVSource
	AircraftSize        *AircraftSize
	GPSLateralOffsetM      *int
	GPSLongitudinalOffsetM *int
	GPSPositionOffsetApplied *bool
	UTCCoupled          *bool
	UplinkFeedback      *int
	TISBSiteID          *int

	// TS
	SelectedAltitudeFt   *float64
	SelectedAltitudeType *SelectedAltitudeType
	BarometricPressure   *float64
	SelectedHeadingDeg   *float64
	ModeIndicators       *ModeIndicators

	// MS
	Callsign       *string
	FlightplanID   *string
	EmitterCategory *int
	Emergency      *Emergency
	MOPSVersion    *int
	SIL            *int
	TransmitMSO    *int
	SDA            *int
	NACp           *int
	NACv           *int
	NICBaro        *bool
	Capability     *CapabilityCodes
	Operational    *OperationalModes
	SilSupplement  *SilSupplement
	GVA            *int
	SingleAntenna  *bool
	NICSupplement  *bool

	// AUXSV
	AuxGeometricAltitude *float64
	AuxPressureAltitude  *float64

	// metadata, populated by the caller from the RawFrame this record came from
	RSSI            float64
	CorrectedErrors int
	ReceivedAt      time.Time
	RawTimestamp    uint32
	HasRawTimestamp bool
}
