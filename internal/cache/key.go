package cache

import (
	"time"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

// キャッシュ対象のエンティティ種別
const (
	EntityReservation  = "reservation"
	EntityAvailability = "availability"
)

// Key は (エンティティ種別, ID) のキャッシュキー
type Key struct {
	Entity string
	ID     string
}

func (k Key) String() string {
	return "hotel:" + k.Entity + ":" + k.ID
}

// ReservationKey は予約のキャッシュキー
func ReservationKey(id string) Key {
	return Key{Entity: EntityReservation, ID: id}
}

// NightKey は客室・1泊分の在庫のキャッシュキー
func NightKey(roomID string, date time.Time) Key {
	return Key{Entity: EntityAvailability, ID: roomID + ":" + stay.FormatDate(date)}
}

// NightKeys は区間の各泊のキャッシュキー
func NightKeys(roomID string, r stay.DateRange) []Key {
	dates := r.Dates()
	keys := make([]Key, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, NightKey(roomID, d))
	}
	return keys
}

// KeysForStay は予約の変更で無効化すべきキー（各泊と予約本体）
func KeysForStay(roomID string, r stay.DateRange, reservationID string) []Key {
	keys := NightKeys(roomID, r)
	if reservationID != "" {
		keys = append(keys, ReservationKey(reservationID))
	}
	return keys
}
