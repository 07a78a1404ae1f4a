// Package domain models amateur-radio contacts (QSOs) as they flow through the
// map service.
//
// # Data Source
//
// Contest logging software (QARTest and compatible loggers) broadcasts one UDP
// datagram per logged contact. The payload is a small XML document:
//
//	<?xml version="1.0"?>
//	<contactinfo>
//	  <logger>QARTest 14.9.1</logger>
//	  <band>40</band>
//	  <mode>SSB</mode>
//	  <call>N1CALL</call>
//	  ...
//	</contactinfo>
//
// Only <call> and <band> are consumed. The root element must be <contactinfo>,
// <call> must be non-empty after trimming and <band> must be present (it may be
// empty). Every other element is ignored. See [ParseContactRecord].
//
// # Location Lookup
//
// Coordinates come from a callsign directory (QRZ.com XML API) behind the
// [Lookup] interface. The directory may return a callsign with no coordinates;
// each missing coordinate defaults to 0.0 independently. The pair (0.0, 0.0) is
// the "location unknown" sentinel: it is still published, never treated as an
// error. See [Enrich].
//
// # Error Taxonomy
//
//	ErrBind             socket cannot bind; fatal for the listener
//	ErrMalformedContact undecodable datagram; logged and discarded
//	ErrLookupTransport  network failure or bad HTTP status; logged and discarded
//	ErrLookupDecode     unparsable directory response; logged and discarded
//	*RemoteError        directory-reported error ("Not found: ZZFAKE"); logged and discarded
//
// Channel-lifecycle errors (queue.ErrClosed, hub.ErrClosed) live with the
// structures that produce them and are fatal only for the dependent stage.
package domain
