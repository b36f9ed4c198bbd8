package uat

import "math"

// DecodePayload turns a FEC-corrected downlink payload (18 or 34 bytes)
// plus its frame metadata into an AdsbRecord, per DO-282B Table 2-10.
// Uplink frames are not accepted here; they pass through the pipeline as
// opaque bytes (spec.md §2 step 5).
func DecodePayload(frame RawFrame) *AdsbRecord {
	payload := frame.Payload
	rec := &AdsbRecord{
		RSSI:            frame.RSSI,
		CorrectedErrors: frame.CorrectedErrors,
		ReceivedAt:      frame.ReceivedAt,
		RawTimestamp:    frame.RawTimestamp,
		HasRawTimestamp: frame.HasRawTimestamp,
	}

	rec.PayloadType = int(MustBits(payload, 1, 1, 1, 5))
	rec.AddressQualifier = AddressQualifier(MustBits(payload, 1, 6, 1, 8))
	rec.Address = MustBits(payload, 2, 1, 4, 8)

	switch rec.PayloadType {
	case 0:
		decodeSV(payload, rec)
	case 1:
		decodeSV(payload, rec)
		decodeMS(payload, rec)
		decodeAUXSV(payload, rec)
	case 2:
		decodeSV(payload, rec)
		decodeAUXSV(payload, rec)
	case 3:
		decodeSV(payload, rec)
		decodeMS(payload, rec)
		decodeTS(payload, rec, 30)
	case 4:
		decodeSV(payload, rec)
		decodeTS(payload, rec, 30)
	case 5:
		decodeSV(payload, rec)
		decodeAUXSV(payload, rec)
	case 6:
		decodeSV(payload, rec)
		decodeTS(payload, rec, 25)
		decodeAUXSV(payload, rec)
	case 7, 8, 9, 10:
		decodeSV(payload, rec)
	default:
		// 11..31: HDR only.
	}
	return rec
}

func roundN(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }
func bp(v bool) *bool       { return &v }
func sp(v string) *string   { return &v }

func decodeSV(payload []byte, rec *AdsbRecord) {
	rawLat := MustBits(payload, 5, 1, 7, 7)
	rawLon := MustBits(payload, 7, 8, 10, 7)

	rawAlt := MustBits(payload, 11, 1, 12, 4)
	if rawAlt != 0 {
		altitude := float64(int(rawAlt)-41) * 25
		if MustBit(payload, 10, 8) != 0 {
			rec.GeometricAltitude = fp(altitude)
		} else {
			rec.PressureAltitude = fp(altitude)
		}
	}

	nic := int(MustBits(payload, 12, 5, 12, 8))
	rec.NIC = ip(nic)

	if rawLat != 0 || rawLon != 0 || nic != 0 {
		lat := float64(rawLat) * 360.0 / 16777216.0
		if lat > 90 {
			lat -= 180
		}
		lon := float64(rawLon) * 360.0 / 16777216.0
		if lon > 180 {
			lon -= 360
		}
		rec.Position = &Position{Lat: roundN(lat, 5), Lon: roundN(lon, 5)}
	}

	state := AirGroundState(MustBits(payload, 13, 1, 13, 2))
	rec.AirGroundState = &state

	switch state {
	case StateAirborneSubsonic, StateAirborneSupersonic:
		supersonic := 1
		if state == StateAirborneSupersonic {
			supersonic = 4
		}
		nsSign := 1
		if MustBit(payload, 13, 4) != 0 {
			nsSign = -1
		}
		var northVelocity, eastVelocity *int
		if rawNS := int(MustBits(payload, 13, 5, 14, 6)); rawNS != 0 {
			v := supersonic * nsSign * (rawNS - 1)
			northVelocity = &v
		}
		ewSign := 1
		if MustBit(payload, 14, 7) != 0 {
			ewSign = -1
		}
		if rawEW := int(MustBits(payload, 14, 8, 16, 1)); rawEW != 0 {
			v := supersonic * ewSign * (rawEW - 1)
			eastVelocity = &v
		}
		if northVelocity != nil && eastVelocity != nil {
			n, e := float64(*northVelocity), float64(*eastVelocity)
			rec.GroundSpeedKt = fp(roundN(math.Sqrt(n*n+e*e), 1))
			angle := math.Atan2(e, n) * 180.0 / math.Pi
			if angle < 0 {
				angle += 360.0
			}
			rec.TrueTrackDeg = fp(roundN(angle, 1))
		}

		vvSrc := VVSource(MustBits(payload, 16, 2, 16, 2))
		rec.VerticalVelocitySrc = &vvSrc
		vvSign := 1
		if MustBit(payload, 16, 3) != 0 {
			vvSign = -1
		}
		if rawVV := int(MustBits(payload, 16, 4, 17, 4)); rawVV != 0 {
			rec.VerticalVelocityFpm = fp(float64(vvSign * (rawVV - 1) * 64))
		}

	case StateGround:
		if rawGS := int(MustBits(payload, 13, 5, 14, 6)); rawGS != 0 {
			rec.GroundSpeedKt = fp(float64(rawGS - 1))
		}

		tahType := MustBits(payload, 14, 7, 14, 8)
		angle := roundN(float64(MustBits(payload, 15, 1, 16, 1))*360.0/512.0, 1)
		switch tahType {
		case 1:
			rec.TrueTrackDeg = fp(angle)
		case 2:
			rec.MagneticHeadingDeg = fp(angle)
		case 3:
			rec.TrueHeadingDeg = fp(angle)
		}

		if rawSize := MustBits(payload, 16, 2, 16, 5); rawSize != 0 && int(rawSize) < len(aircraftSizeTable) {
			sz := aircraftSizeTable[rawSize]
			rec.AircraftSize = &sz
		}

		if MustBit(payload, 16, 7) != 0 {
			if rawGPSLong := int(MustBits(payload, 16, 8, 17, 4)); rawGPSLong != 0 {
				if rawGPSLong == 1 {
					rec.GPSPositionOffsetApplied = bp(true)
				} else {
					rec.GPSPositionOffsetApplied = bp(false)
					rec.GPSLongitudinalOffsetM = ip((rawGPSLong - 1) * 2)
				}
			}
		} else {
			// We adopt the convention that left is negative.
			if rawGPSLat := int(MustBits(payload, 16, 8, 17, 2)); rawGPSLat != 0 {
				if rawGPSLat <= 3 {
					rec.GPSLateralOffsetM = ip(rawGPSLat * -2)
				} else {
					rec.GPSLateralOffsetM = ip((rawGPSLat - 4) * 2)
				}
			}
		}
	}

	switch rec.AddressQualifier {
	case AddrADSBICAO, AddrADSBOther, AddrVehicle, AddrFixedBeacon:
		rec.UTCCoupled = bp(MustBit(payload, 17, 5) != 0)
		rec.UplinkFeedback = ip(int(MustBits(payload, 17, 6, 17, 8)))
	case AddrTISBICAO, AddrTISBTrackFile, AddrADSROther:
		rec.TISBSiteID = ip(int(MustBits(payload, 17, 5, 17, 8)))
	}
}

func decodeTS(payload []byte, rec *AdsbRecord, startByte int) {
	rawAltitude := MustBits(payload, startByte+0, 2, startByte+1, 4)
	if rawAltitude != 0 {
		t := SelectedAltitudeType(MustBits(payload, startByte+0, 1, startByte+0, 1))
		rec.SelectedAltitudeType = &t
		rec.SelectedAltitudeFt = fp(float64(int(rawAltitude)-1) * 32)
	}

	if rawBPS := MustBits(payload, startByte+1, 5, startByte+2, 5); rawBPS != 0 {
		rec.BarometricPressure = fp(800 + float64(int(rawBPS)-1)*0.8)
	}

	if MustBit(payload, startByte+2, 6) != 0 {
		sign := 1.0
		if MustBit(payload, startByte+2, 7) != 0 {
			sign = -1.0
		}
		heading := roundN(float64(MustBits(payload, startByte+2, 8, startByte+3, 7))*180.0/256.0, 1)
		rec.SelectedHeadingDeg = fp(sign * heading)
	}

	if MustBit(payload, startByte+3, 8) != 0 {
		rec.ModeIndicators = &ModeIndicators{
			Autopilot:    MustBit(payload, startByte+4, 1) != 0,
			VNAV:         MustBit(payload, startByte+4, 2) != 0,
			AltitudeHold: MustBit(payload, startByte+4, 3) != 0,
			Approach:     MustBit(payload, startByte+4, 4) != 0,
			LNAV:         MustBit(payload, startByte+4, 5) != 0,
		}
	}
}

const base40Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ *??"

func decodeBase40(raw1, raw2, raw3 uint32) string {
	chars := []byte{
		base40Alphabet[(raw1/40)%40],
		base40Alphabet[raw1%40],
		base40Alphabet[(raw2/1600)%40],
		base40Alphabet[(raw2/40)%40],
		base40Alphabet[raw2%40],
		base40Alphabet[(raw3/1600)%40],
		base40Alphabet[(raw3/40)%40],
		base40Alphabet[raw3%40],
	}
	end := len(chars)
	for end > 0 && (chars[end-1] == ' ' || chars[end-1] == '*') {
		end--
	}
	return string(chars[:end])
}

func decodeMS(payload []byte, rec *AdsbRecord) {
	raw1 := MustBits(payload, 18, 1, 19, 8)
	raw2 := MustBits(payload, 20, 1, 21, 8)
	raw3 := MustBits(payload, 22, 1, 23, 8)

	rec.EmitterCategory = ip(int((raw1 / 1600) % 40))

	if s := decodeBase40(raw1, raw2, raw3); s != "" {
		if MustBit(payload, 27, 7) != 0 {
			rec.Callsign = sp(s)
		} else {
			rec.FlightplanID = sp(s)
		}
	}

	emergency := Emergency(MustBits(payload, 24, 1, 24, 3))
	rec.Emergency = &emergency
	rec.MOPSVersion = ip(int(MustBits(payload, 24, 4, 24, 6)))
	rec.SIL = ip(int(MustBits(payload, 24, 7, 24, 8)))
	rec.TransmitMSO = ip(int(MustBits(payload, 25, 1, 25, 6)))
	rec.SDA = ip(int(MustBits(payload, 25, 7, 25, 8)))
	rec.NACp = ip(int(MustBits(payload, 26, 1, 26, 4)))
	rec.NACv = ip(int(MustBits(payload, 26, 5, 26, 7)))
	rec.NICBaro = bp(MustBit(payload, 26, 8) != 0)

	rec.Capability = &CapabilityCodes{
		UATIn:           MustBit(payload, 27, 1) != 0,
		ESIn:            MustBit(payload, 27, 2) != 0,
		TCASOperational: MustBit(payload, 27, 3) != 0,
	}
	rec.Operational = &OperationalModes{
		TCASRAActive: MustBit(payload, 27, 4) != 0,
		IdentActive:  MustBit(payload, 27, 5) != 0,
		ATCServices:  MustBit(payload, 27, 6) != 0,
	}

	silSupp := SilSupplement(MustBits(payload, 27, 8, 27, 8))
	rec.SilSupplement = &silSupp
	rec.GVA = ip(int(MustBits(payload, 28, 1, 28, 2)))
	rec.SingleAntenna = bp(MustBit(payload, 28, 3) != 0)
	rec.NICSupplement = bp(MustBit(payload, 28, 4) != 0)
}

func decodeAUXSV(payload []byte, rec *AdsbRecord) {
	rawAlt := MustBits(payload, 30, 1, 31, 4)
	if rawAlt == 0 {
		return
	}
	altitude := float64(int(rawAlt)-41) * 25
	// Routed OPPOSITE of the primary SV's altitude-type bit (10:8), which
	// is always present when AUXSV is present.
	if MustBit(payload, 10, 8) != 0 {
		rec.AuxPressureAltitude = fp(altitude)
	} else {
		rec.AuxGeometricAltitude = fp(altitude)
	}
}
