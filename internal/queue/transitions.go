package queue

import "antrian-klinik/internal/models"

// waiting -> called is reachable only through CallNext, so it is not listed.
var transitionMap = map[models.Status][]models.Status{
	models.StatusWaiting:   {models.StatusCanceled},
	models.StatusCalled:    {models.StatusInService, models.StatusNoShow},
	models.StatusInService: {models.StatusCompleted},
}

func ValidTransition(from, to models.Status) bool {
	for _, status := range transitionMap[from] {
		if status == to {
			return true
		}
	}
	return false
}
