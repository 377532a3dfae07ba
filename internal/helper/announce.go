package helper

import (
	"fmt"
	"strings"
)

/*
|--------------------------------------------------------------------------
| Audio Pemanggilan
|--------------------------------------------------------------------------
| Urutan file suara yang diputar layar ruang tunggu saat nomor dipanggil:
| ting, "nomor antrian", angka dalam bahasa Indonesia, "silakan ke", poli.
*/

func AnnouncementPaths(number int64, department string) []string {
	paths := []string{
		"audio/ting.mp3",
		"audio/nomor_antrian.mp3",
	}
	paths = append(paths, NumberToAudio(number)...)
	paths = append(paths, "audio/silakan_ke.mp3")

	if dept := strings.TrimSpace(strings.ToLower(department)); dept != "" {
		paths = append(paths, fmt.Sprintf("audio/poli_%s.mp3", strings.ReplaceAll(dept, " ", "_")))
	}
	return paths
}

var ones = []string{
	"", "satu", "dua", "tiga", "empat",
	"lima", "enam", "tujuh", "delapan", "sembilan",
}

func NumberToAudio(num int64) []string {
	if num <= 0 {
		return []string{"audio/nol.mp3"}
	}

	switch {
	case num < 10:
		return []string{fmt.Sprintf("audio/%s.mp3", ones[num])}
	case num == 10:
		return []string{"audio/sepuluh.mp3"}
	case num == 11:
		return []string{"audio/sebelas.mp3"}
	case num < 20:
		return []string{
			fmt.Sprintf("audio/%s.mp3", ones[num-10]),
			"audio/belas.mp3",
		}
	case num < 100:
		res := []string{
			fmt.Sprintf("audio/%s.mp3", ones[num/10]),
			"audio/puluh.mp3",
		}
		if num%10 > 0 {
			res = append(res, fmt.Sprintf("audio/%s.mp3", ones[num%10]))
		}
		return res
	case num < 200:
		res := []string{"audio/seratus.mp3"}
		if num > 100 {
			res = append(res, NumberToAudio(num-100)...)
		}
		return res
	case num < 1000:
		res := []string{
			fmt.Sprintf("audio/%s.mp3", ones[num/100]),
			"audio/ratus.mp3",
		}
		if num%100 > 0 {
			res = append(res, NumberToAudio(num%100)...)
		}
		return res
	case num < 2000:
		res := []string{"audio/seribu.mp3"}
		if num > 1000 {
			res = append(res, NumberToAudio(num-1000)...)
		}
		return res
	}

	// antrian harian tidak pernah sampai sini; eja per digit
	var res []string
	for _, d := range fmt.Sprint(num) {
		res = append(res, NumberToAudio(int64(d-'0'))...)
	}
	return res
}
