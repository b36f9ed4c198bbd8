package wire

import (
	"encoding/json"
	"fmt"

	"github.com/uatdecode/uatd/internal/dict"
	"github.com/uatdecode/uatd/internal/uat"
)

// ToJSON renders one decoded downlink record per spec.md §6.2: required
// address_qualifier/address, optional fields named after §4.4 verbatim, a
// handful of nested objects, and an always-present metadata sub-object.
func ToJSON(rec *uat.AdsbRecord) ([]byte, error) {
	return json.Marshal(recordFields(rec))
}

// ToJSONWithDict renders the same fields as ToJSON, plus a "known_as"
// string when store has a matching entry for the record's address.
// An unknown address is omitted rather than emitted as an empty string.
func ToJSONWithDict(rec *uat.AdsbRecord, store *dict.Store) ([]byte, error) {
	m := recordFields(rec)
	if name, ok := store.KnownAs(rec.Address); ok {
		m["known_as"] = name
	}
	return json.Marshal(m)
}

func recordFields(rec *uat.AdsbRecord) map[string]interface{} {
	m := map[string]interface{}{
		"address_qualifier": rec.AddressQualifier.String(),
		"address":           fmt.Sprintf("%06x", rec.Address&0xFFFFFF),
	}

	if rec.Position != nil {
		m["position"] = map[string]float64{"lat": rec.Position.Lat, "lon": rec.Position.Lon}
	}
	if rec.NIC != nil {
		m["nic"] = *rec.NIC
	}
	if rec.PressureAltitude != nil {
		m["pressure_altitude"] = *rec.PressureAltitude
	}
	if rec.GeometricAltitude != nil {
		m["geometric_altitude"] = *rec.GeometricAltitude
	}
	if rec.AirGroundState != nil {
		m["airground_state"] = rec.AirGroundState.String()
	}
	if rec.GroundSpeedKt != nil {
		m["ground_speed"] = *rec.GroundSpeedKt
	}
	if rec.TrueTrackDeg != nil {
		m["true_track"] = *rec.TrueTrackDeg
	}
	if rec.MagneticHeadingDeg != nil {
		m["magnetic_heading"] = *rec.MagneticHeadingDeg
	}
	if rec.TrueHeadingDeg != nil {
		m["true_heading"] = *rec.TrueHeadingDeg
	}
	if rec.VerticalVelocityFpm != nil {
		m["vertical_velocity"] = *rec.VerticalVelocityFpm
	}
	if rec.VerticalVelocitySrc != nil {
		m["vv_src"] = rec.VerticalVelocitySrc.String()
	}
	if rec.AircraftSize != nil {
		m["aircraft_size"] = map[string]float64{"length": rec.AircraftSize.Length, "width": rec.AircraftSize.Width}
	}
	if rec.GPSLateralOffsetM != nil {
		m["gps_lateral_offset"] = *rec.GPSLateralOffsetM
	}
	if rec.GPSLongitudinalOffsetM != nil {
		m["gps_longitudinal_offset"] = *rec.GPSLongitudinalOffsetM
	}
	if rec.GPSPositionOffsetApplied != nil {
		m["gps_position_offset_applied"] = *rec.GPSPositionOffsetApplied
	}
	if rec.UTCCoupled != nil {
		m["utc_coupled"] = *rec.UTCCoupled
	}
	if rec.UplinkFeedback != nil {
		m["uplink_feedback"] = *rec.UplinkFeedback
	}
	if rec.TISBSiteID != nil {
		m["tisb_site_id"] = *rec.TISBSiteID
	}

	if rec.SelectedAltitudeFt != nil {
		m["selected_altitude"] = *rec.SelectedAltitudeFt
	}
	if rec.SelectedAltitudeType != nil {
		m["selected_altitude_type"] = rec.SelectedAltitudeType.String()
	}
	if rec.BarometricPressure != nil {
		m["barometric_pressure"] = *rec.BarometricPressure
	}
	if rec.SelectedHeadingDeg != nil {
		m["selected_heading"] = *rec.SelectedHeadingDeg
	}
	if rec.ModeIndicators != nil {
		m["mode_indicators"] = map[string]bool{
			"autopilot":     rec.ModeIndicators.Autopilot,
			"vnav":          rec.ModeIndicators.VNAV,
			"altitude_hold": rec.ModeIndicators.AltitudeHold,
			"approach":      rec.ModeIndicators.Approach,
			"lnav":          rec.ModeIndicators.LNAV,
		}
	}

	if rec.Callsign != nil {
		m["callsign"] = *rec.Callsign
	}
	if rec.FlightplanID != nil {
		m["flightplan_id"] = *rec.FlightplanID
	}
	if rec.EmitterCategory != nil {
		m["emitter_category"] = *rec.EmitterCategory
	}
	if rec.Emergency != nil {
		m["emergency"] = rec.Emergency.String()
	}
	if rec.MOPSVersion != nil {
		m["mops_version"] = *rec.MOPSVersion
	}
	if rec.SIL != nil {
		m["sil"] = *rec.SIL
	}
	if rec.TransmitMSO != nil {
		m["transmit_mso"] = *rec.TransmitMSO
	}
	if rec.SDA != nil {
		m["sda"] = *rec.SDA
	}
	if rec.NACp != nil {
		m["nac_p"] = *rec.NACp
	}
	if rec.NACv != nil {
		m["nac_v"] = *rec.NACv
	}
	if rec.NICBaro != nil {
		m["nic_baro"] = *rec.NICBaro
	}
	if rec.Capability != nil {
		m["capability_codes"] = map[string]bool{
			"uat_in":           rec.Capability.UATIn,
			"es_in":            rec.Capability.ESIn,
			"tcas_operational": rec.Capability.TCASOperational,
		}
	}
	if rec.Operational != nil {
		m["operational_modes"] = map[string]bool{
			"tcas_ra_active": rec.Operational.TCASRAActive,
			"ident_active":   rec.Operational.IdentActive,
			"atc_services":   rec.Operational.ATCServices,
		}
	}
	if rec.SilSupplement != nil {
		m["sil_supplement"] = rec.SilSupplement.String()
	}
	if rec.GVA != nil {
		m["gva"] = *rec.GVA
	}
	if rec.SingleAntenna != nil {
		m["single_antenna"] = *rec.SingleAntenna
	}
	if rec.NICSupplement != nil {
		m["nic_supplement"] = *rec.NICSupplement
	}

	if rec.AuxGeometricAltitude != nil {
		m["aux_geometric_altitude"] = *rec.AuxGeometricAltitude
	}
	if rec.AuxPressureAltitude != nil {
		m["aux_pressure_altitude"] = *rec.AuxPressureAltitude
	}

	metadata := map[string]interface{}{
		"rssi":   roundDp(rec.RSSI, 1),
		"errors": rec.CorrectedErrors,
	}
	if !rec.ReceivedAt.IsZero() {
		nanos := rec.ReceivedAt.UnixNano()
		metadata["received_at"] = float64(nanos) / 1e9
	}
	if rec.HasRawTimestamp && rec.RawTimestamp != 0 {
		metadata["raw_timestamp"] = rec.RawTimestamp
	}
	m["metadata"] = metadata

	return m
}

func roundDp(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	r := v * scale
	if r >= 0 {
		r += 0.5
	} else {
		r -= 0.5
	}
	return float64(int64(r)) / scale
}
