package jobs

import (
	"github.com/gin-gonic/gin/binding"
)

// Supported employment types.
const (
	JobTypeFullTime   = "fulltime"
	JobTypePartTime   = "parttime"
	JobTypeInternship = "internship"
	JobTypeContract   = "contract"
)

// SearchParams 是一次职位搜索的参数，从查询字符串绑定。
type SearchParams struct {
	SearchTerm    string `form:"search_term" json:"search_term" binding:"required"`
	Location      string `form:"location" json:"location" binding:"required"`
	Distance      int    `form:"distance,default=0" json:"distance" binding:"gte=0"` // 英里
	JobType       string `form:"job_type" json:"job_type,omitempty" binding:"omitempty,oneof=fulltime parttime internship contract"`
	IsRemote      bool   `form:"is_remote,default=false" json:"is_remote"`
	Offset        int    `form:"offset,default=0" json:"offset" binding:"gte=0"`
	ResultsWanted int    `form:"results_wanted,default=10" json:"results_wanted" binding:"gte=1,lte=100"`
	HoursOld      int    `form:"hours_old,default=24" json:"hours_old" binding:"gte=1"`
}

// DefaultParams returns the parameters with every optional field defaulted.
func DefaultParams(searchTerm, location string) SearchParams {
	return SearchParams{
		SearchTerm:    searchTerm,
		Location:      location,
		ResultsWanted: 10,
		HoursOld:      24,
	}
}

// Validate checks the parameters with the same rules the HTTP binding uses.
func (p SearchParams) Validate() error {
	return binding.Validator.ValidateStruct(p)
}
