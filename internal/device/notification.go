package device

import (
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/services"
)

// HandleNotificationEvent records notifications, attaches fetched details
// and keeps the last start-application result.
func (d *Device) HandleNotificationEvent(ev *services.NotificationEvent) protocol.ResultCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ev.Kind {
	case services.NotificationEventInfo:
		info := ev.Info
		d.recordLocked(NotificationRecord{
			Conn:             ev.Conn,
			Category:         info.Category,
			UniqueID:         info.UniqueID,
			ParameterIDList:  info.ParameterIDList,
			Rumbling:         info.Rumbling,
			HasRumbling:      info.HasRumbling,
			VibrationPattern: cloneBytes(info.VibrationPattern),
			LEDPattern:       cloneBytes(info.LEDPattern),
			Received:         d.now(),
		})
		d.log.Info().Uint16("conn", uint16(ev.Conn)).Uint16("unique_id", info.UniqueID).Uint16("category", info.Category).Msg("device notification")
	case services.NotificationEventDetail:
		detail := ev.Detail
		if detail.Result != protocol.ResultOK {
			d.log.Info().Uint16("unique_id", detail.UniqueID).Stringer("result", detail.Result).Msg("device notify detail refused")
			return protocol.ResultOK
		}
		rec := d.findLocked(ev.Conn, detail.UniqueID)
		if rec == nil {
			d.log.Debug().Uint16("unique_id", detail.UniqueID).Msg("device notify detail for unknown notification")
			return protocol.ResultOK
		}
		if rec.Details == nil {
			rec.Details = make(map[uint8][]byte)
		}
		rec.Details[detail.ParamID] = cloneBytes(detail.Data)
	case services.NotificationEventStartApplication:
		result := ev.StartResult
		d.lastStart = &result
		d.log.Info().Uint16("conn", uint16(ev.Conn)).Stringer("result", result).Msg("device start application answered")
	default:
		return protocol.ResultNotSupport
	}
	return protocol.ResultOK
}

func (d *Device) recordLocked(rec NotificationRecord) {
	if len(d.notifications) >= d.cfg.History {
		d.notifications = append(d.notifications[:0], d.notifications[1:]...)
	}
	d.notifications = append(d.notifications, rec)
}

// findLocked returns the newest notification with uniqueID on conn.
func (d *Device) findLocked(conn protocol.ConnHandle, uniqueID uint16) *NotificationRecord {
	for i := len(d.notifications) - 1; i >= 0; i-- {
		rec := &d.notifications[i]
		if rec.Conn == conn && rec.UniqueID == uniqueID {
			return rec
		}
	}
	return nil
}
